package host

import (
	"fmt"
	"strings"

	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

type matchPhase int

const (
	phaseExact matchPhase = iota
	phaseCoercible
	phaseVariadic
)

func (p matchPhase) String() string {
	switch p {
	case phaseExact:
		return "exact"
	case phaseCoercible:
		return "coercible"
	case phaseVariadic:
		return "variadic"
	}
	return "unknown"
}

// Resolve picks the overload of method that accepts args. Phases run in
// order: exact parameter types, then signatures whose mismatched slots are
// all object, then variadic signatures. The first signature matching in the
// earliest successful phase wins. Repetitions are materialized before
// matching, so the returned arguments never hold one.
func Resolve(c *Class, method string, args []vm.Value) (*Signature, []vm.Value, error) {
	return resolve(c, method, args, false)
}

// ResolveWidening is Resolve with numeric widening (int to long or double,
// long to double) also accepted in the coercible and variadic phases.
// Widened arguments are converted to the parameter type.
func ResolveWidening(c *Class, method string, args []vm.Value) (*Signature, []vm.Value, error) {
	return resolve(c, method, args, true)
}

func resolve(c *Class, method string, args []vm.Value, widen bool) (*Signature, []vm.Value, error) {
	sigs := c.SignaturesFor(method)
	if len(sigs) == 0 {
		return nil, nil, vm.Errorf(vm.UnresolvedReferenceError, 0, "method not found: %s.%s", c.Name, method)
	}
	plain := make([]vm.Value, len(args))
	for i, a := range args {
		if _, ok := a.(vm.UninitValue); ok {
			return nil, nil, vm.Errorf(vm.UnresolvedReferenceError, 0, "use of uninitialized value in call to %s.%s", c.Name, method)
		}
		v, err := vm.Materialize(a)
		if err != nil {
			return nil, nil, err
		}
		plain[i] = v
	}
	for _, phase := range []matchPhase{phaseExact, phaseCoercible, phaseVariadic} {
		for _, sig := range sigs {
			converted, ok := match(phase, sig, plain, widen)
			if !ok {
				continue
			}
			log.Trace().Str("class", c.Name).Str("signature", sig.String()).Str("phase", phase.String()).Msg("resolved host method")
			return sig, converted, nil
		}
	}
	var cands []string
	for _, s := range sigs {
		cands = append(cands, s.String())
	}
	return nil, nil, vm.Errorf(vm.ParameterError, 0, "no overload of %s.%s accepts (%s); candidates: %s",
		c.Name, method, typeList(plain), strings.Join(cands, ", "))
}

func match(phase matchPhase, sig *Signature, args []vm.Value, widen bool) ([]vm.Value, bool) {
	switch phase {
	case phaseExact:
		if sig.Variadic || len(sig.Params) != len(args) {
			return nil, false
		}
		for i, p := range sig.Params {
			if !exact(p, args[i]) {
				return nil, false
			}
		}
		return args, true
	case phaseCoercible:
		if sig.Variadic || len(sig.Params) != len(args) {
			return nil, false
		}
		return coerceAll(sig.Params, args, widen)
	case phaseVariadic:
		if !sig.Variadic || len(sig.Params) == 0 {
			return nil, false
		}
		fixed := sig.Params[:len(sig.Params)-1]
		if len(args) < len(fixed) {
			return nil, false
		}
		elem := sig.Params[len(sig.Params)-1]
		types := make([]vm.Type, len(args))
		copy(types, fixed)
		for i := len(fixed); i < len(args); i++ {
			types[i] = elem
		}
		return coerceAll(types, args, widen)
	}
	return nil, false
}

func exact(p vm.Type, v vm.Value) bool {
	return p == v.Type()
}

func coerceAll(params []vm.Type, args []vm.Value, widen bool) ([]vm.Value, bool) {
	out := make([]vm.Value, len(args))
	for i, p := range params {
		v, ok := coerce(p, args[i], widen)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// coerce accepts v for a slot of type p when the types are identical or the
// slot is object. Numeric widening is only considered when widen is set.
func coerce(p vm.Type, v vm.Value, widen bool) (vm.Value, bool) {
	switch {
	case p == vm.TypeObject, exact(p, v):
		return v, true
	case widen && vm.Widens(v.Type(), p):
		c, err := vm.Convert(v, p)
		return c, err == nil
	}
	return nil, false
}

func typeList(args []vm.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Type().String()
	}
	return strings.Join(parts, ", ")
}

// Invoke runs a resolved signature. Engine errors raised by the host keep
// their kind; anything else, including a panic, is reported as an
// UnknownHostFailure wrapping the original error.
func Invoke(call *Call, sig *Signature, args []vm.Value) (result vm.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &vm.Error{
				Kind:  vm.UnknownHostFailure,
				Line:  call.Line,
				Msg:   fmt.Sprintf("%s.%s panicked", call.Class.Name, sig.Name),
				Cause: fmt.Errorf("%v", r),
			}
		}
	}()
	result, err = sig.Fn(call, args)
	if err != nil {
		return nil, vm.Wrap(err, call.Line, fmt.Sprintf("%s.%s failed", call.Class.Name, sig.Name))
	}
	if result == nil {
		result = vm.Null
	}
	return result, nil
}
