package interp

import (
	"fmt"

	"github.com/quillscript/quill/vm"
)

// Store holds the variables of one machine together with their static type
// bindings. A variable without a binding is free-typed.
type Store struct {
	Variables map[string]vm.Value
	Types     map[string]vm.Type
}

// LoopContext tracks one open loop. Start and End are the indices of the
// loop's LOOP_START and END_BLOCK instructions.
type LoopContext struct {
	Start     int
	End       int
	Remaining int64
	Infinite  bool
}

func (l LoopContext) String() string {
	if l.Infinite {
		return fmt.Sprintf("loop[%d..%d] forever", l.Start, l.End)
	}
	return fmt.Sprintf("loop[%d..%d] %d left", l.Start, l.End, l.Remaining)
}

// TypePolicy decides how assignments to statically typed variables and
// host method arguments are checked.
type TypePolicy int

const (
	// StrictTypes requires the assigned value's type to equal the binding.
	StrictTypes TypePolicy = iota
	// WideningTypes also accepts values that widen to the binding or
	// parameter type (int to long or double, long to double) and converts
	// them.
	WideningTypes
)

func (p TypePolicy) String() string {
	switch p {
	case StrictTypes:
		return "strict"
	case WideningTypes:
		return "widening"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

type StepResult int

const (
	ContinueStep StepResult = iota
	EndStep
	ErrorStep
)

func (r StepResult) String() string {
	switch r {
	case ContinueStep:
		return "Continue"
	case EndStep:
		return "End"
	case ErrorStep:
		return "Error"
	default:
		return "Unknown"
	}
}
