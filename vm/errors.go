package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every failure the engine reports.
type Kind int

const (
	SyntaxError Kind = iota
	TypeMismatchError
	MathError
	UnresolvedReferenceError
	ParameterError
	ResourceExhaustedError
	UnknownHostFailure
)

func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case TypeMismatchError:
		return "TypeMismatchError"
	case MathError:
		return "MathError"
	case UnresolvedReferenceError:
		return "UnresolvedReferenceError"
	case ParameterError:
		return "ParameterError"
	case ResourceExhaustedError:
		return "ResourceExhaustedError"
	case UnknownHostFailure:
		return "UnknownHostFailure"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the structured failure returned by the compiler, the evaluator,
// the host dispatch layer and the machine. Line is 0 when unknown.
type Error struct {
	Kind  Kind
	Line  int
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Cause != nil && e.Kind == UnknownHostFailure {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, vm.ErrMath) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

var (
	ErrSyntax            = &Error{Kind: SyntaxError}
	ErrTypeMismatch      = &Error{Kind: TypeMismatchError}
	ErrMath              = &Error{Kind: MathError}
	ErrUnresolved        = &Error{Kind: UnresolvedReferenceError}
	ErrParameter         = &Error{Kind: ParameterError}
	ErrResourceExhausted = &Error{Kind: ResourceExhaustedError}
	ErrUnknownHost       = &Error{Kind: UnknownHostFailure}
)

func Errorf(kind Kind, line int, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Wrap turns an arbitrary error into an engine error. Engine errors keep
// their kind and only receive a line if they had none.
func Wrap(err error, line int, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Line == 0 && line > 0 {
			cp := *e
			cp.Line = line
			return &cp
		}
		return e
	}
	return &Error{Kind: UnknownHostFailure, Line: line, Msg: msg, Cause: err}
}

// KindOf returns the kind of an engine error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// FormatError renders err together with the offending source line, if the
// error carries one.
func FormatError(err error, source []string) string {
	var e *Error
	if !errors.As(err, &e) || e.Line <= 0 || e.Line > len(source) {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteString("\n\n")
	if e.Line > 1 {
		fmt.Fprintf(&b, "%5d | %s\n", e.Line-1, source[e.Line-2])
	}
	fmt.Fprintf(&b, "%5d > %s\n", e.Line, source[e.Line-1])
	if e.Line < len(source) {
		fmt.Fprintf(&b, "%5d | %s\n", e.Line+1, source[e.Line])
	}
	return b.String()
}
