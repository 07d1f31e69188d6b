package host

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/quillscript/quill/vm"
)

var (
	tInt    = vm.TypeInt
	tLong   = vm.TypeLong
	tDouble = vm.TypeDouble
	tString = vm.TypeString
	tObject = vm.TypeObject
)

// Builtins returns fresh copies of the classes every environment starts with.
func Builtins() []*Class {
	return []*Class{consoleClass(), mathClass(), textClass()}
}

func consoleClass() *Class {
	c := NewClass("Console")
	c.Builtin = true
	c.DefVariadic("print", Params(tObject), func(call *Call, args []vm.Value) (vm.Value, error) {
		return vm.Null, write(call.Out, args, "")
	})
	c.DefVariadic("println", Params(tObject), func(call *Call, args []vm.Value) (vm.Value, error) {
		return vm.Null, write(call.Out, args, "\n")
	})
	return c
}

func write(w io.Writer, args []vm.Value, end string) error {
	if w == nil {
		return nil
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = vm.Text(a)
	}
	_, err := fmt.Fprint(w, strings.Join(parts, " ")+end)
	return err
}

func mathClass() *Class {
	c := NewClass("Math")
	c.Builtin = true
	c.Field("PI", vm.DoubleValue(math.Pi))
	c.Field("E", vm.DoubleValue(math.E))

	c.Def("abs", Params(tInt), func(_ *Call, a []vm.Value) (vm.Value, error) {
		n := int64(a[0].(vm.IntValue))
		if n < 0 {
			n = -n
		}
		return vm.IntOrLong(n), nil
	})
	c.Def("abs", Params(tLong), func(_ *Call, a []vm.Value) (vm.Value, error) {
		n := int64(a[0].(vm.LongValue))
		if n == math.MinInt64 {
			return nil, vm.Errorf(vm.MathError, 0, "abs overflows long")
		}
		if n < 0 {
			n = -n
		}
		return vm.LongValue(n), nil
	})
	c.Def("abs", Params(tDouble), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Abs(float64(a[0].(vm.DoubleValue)))), nil
	})

	c.Def("max", Params(tInt, tInt), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.IntValue(max(a[0].(vm.IntValue), a[1].(vm.IntValue))), nil
	})
	c.Def("max", Params(tLong, tLong), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.LongValue(max(a[0].(vm.LongValue), a[1].(vm.LongValue))), nil
	})
	c.Def("max", Params(tDouble, tDouble), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Max(float64(a[0].(vm.DoubleValue)), float64(a[1].(vm.DoubleValue)))), nil
	})
	c.Def("min", Params(tInt, tInt), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.IntValue(min(a[0].(vm.IntValue), a[1].(vm.IntValue))), nil
	})
	c.Def("min", Params(tLong, tLong), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.LongValue(min(a[0].(vm.LongValue), a[1].(vm.LongValue))), nil
	})
	c.Def("min", Params(tDouble, tDouble), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Min(float64(a[0].(vm.DoubleValue)), float64(a[1].(vm.DoubleValue)))), nil
	})

	c.Def("pow", Params(tDouble, tDouble), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Pow(float64(a[0].(vm.DoubleValue)), float64(a[1].(vm.DoubleValue)))), nil
	})
	c.Def("sqrt", Params(tDouble), func(_ *Call, a []vm.Value) (vm.Value, error) {
		f := float64(a[0].(vm.DoubleValue))
		if f < 0 {
			return nil, vm.Errorf(vm.MathError, 0, "square root of negative number %s", a[0])
		}
		return vm.DoubleValue(math.Sqrt(f)), nil
	})
	c.Def("floor", Params(tDouble), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Floor(float64(a[0].(vm.DoubleValue)))), nil
	})
	return c
}

func textClass() *Class {
	c := NewClass("Text")
	c.Builtin = true
	c.Def("length", Params(tString), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.IntOrLong(int64(utf8.RuneCountInString(vm.Text(a[0])))), nil
	})
	c.Def("upper", Params(tString), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.StrValue(strings.ToUpper(vm.Text(a[0]))), nil
	})
	c.Def("lower", Params(tString), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.StrValue(strings.ToLower(vm.Text(a[0]))), nil
	})
	c.Def("contains", Params(tString, tString), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.BoolValue(strings.Contains(vm.Text(a[0]), vm.Text(a[1]))), nil
	})
	c.Def("repeat", Params(tString, tInt), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.RepeatedValue{Base: vm.Text(a[0]), Count: int64(a[1].(vm.IntValue))}, nil
	})
	c.Def("repeat", Params(tString, tLong), func(_ *Call, a []vm.Value) (vm.Value, error) {
		return vm.RepeatedValue{Base: vm.Text(a[0]), Count: int64(a[1].(vm.LongValue))}, nil
	})
	c.Def("charAt", Params(tString, tInt), func(_ *Call, a []vm.Value) (vm.Value, error) {
		runes := []rune(vm.Text(a[0]))
		i := int(a[1].(vm.IntValue))
		if i < 0 || i >= len(runes) {
			return nil, vm.Errorf(vm.ParameterError, 0, "index %d out of range for string of length %d", i, len(runes))
		}
		return vm.StrValue(string(runes[i])), nil
	})
	c.DefVariadic("concat", Params(tString), func(_ *Call, a []vm.Value) (vm.Value, error) {
		var b strings.Builder
		for _, v := range a {
			b.WriteString(vm.Text(v))
		}
		return vm.StrValue(b.String()), nil
	})
	return c
}
