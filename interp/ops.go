package interp

import (
	"math"
	"strconv"
	"strings"

	"github.com/quillscript/quill/vm"
)

func applyBinary(op string, a, b vm.Value, line int) (vm.Value, error) {
	switch op {
	case "+":
		return add(a, b, line)
	case "-":
		return subtract(a, b, line)
	case "*":
		return multiply(a, b, line)
	case "/", "%":
		return divide(op, a, b, line)
	case ">", "<", ">=", "<=":
		return compare(op, a, b, line)
	case "==", "!=":
		return equal(op, a, b, line)
	case "&&", "||":
		return logical(op, a, b, line)
	}
	return nil, vm.Errorf(vm.SyntaxError, line, "unknown operator %s", op)
}

func isBool(v vm.Value) bool {
	_, ok := v.(vm.BoolValue)
	return ok
}

func isDouble(v vm.Value) bool {
	_, ok := v.(vm.DoubleValue)
	return ok
}

func isIntegral(v vm.Value) bool {
	_, ok := vm.AsInt64(v)
	return ok
}

// numericOperand accepts numbers, and booleans as 0 or 1.
func numericOperand(v vm.Value) (vm.Value, bool) {
	switch n := v.(type) {
	case vm.BoolValue:
		if n {
			return vm.IntValue(1), true
		}
		return vm.IntValue(0), true
	case vm.IntValue, vm.LongValue, vm.DoubleValue:
		return v, true
	}
	return nil, false
}

// textLen is the byte length v would have once materialized.
func textLen(v vm.Value) int64 {
	if r, ok := v.(vm.RepeatedValue); ok {
		return r.Len()
	}
	return int64(len(vm.Text(v)))
}

func checkSize(n int64, line int) error {
	if n > vm.MaxStringBytes {
		return vm.Errorf(vm.ResourceExhaustedError, line, "string of %d bytes exceeds the %d byte limit", n, vm.MaxStringBytes)
	}
	return nil
}

// materialize expands a repetition, refusing ones that are too large.
func materialize(v vm.Value, line int) (vm.Value, error) {
	if _, ok := v.(vm.RepeatedValue); !ok {
		return v, nil
	}
	m, err := vm.Materialize(v)
	if err != nil {
		return nil, vm.Wrap(err, line, "")
	}
	return m, nil
}

func add(a, b vm.Value, line int) (vm.Value, error) {
	if vm.IsStringLike(a) || vm.IsStringLike(b) {
		la, lb := textLen(a), textLen(b)
		if la > vm.MaxStringBytes || lb > vm.MaxStringBytes {
			return nil, checkSize(max(la, lb), line)
		}
		if err := checkSize(la+lb, line); err != nil {
			return nil, err
		}
		return vm.StrValue(vm.Text(a) + vm.Text(b)), nil
	}
	if isBool(a) && isBool(b) {
		return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot add boolean to boolean")
	}
	x, ok1 := numericOperand(a)
	y, ok2 := numericOperand(b)
	if !ok1 || !ok2 {
		return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot apply + to %s and %s", a.Type(), b.Type())
	}
	return arith('+', x, y, line)
}

func subtract(a, b vm.Value, line int) (vm.Value, error) {
	x, ok1 := numericOperand(a)
	y, ok2 := numericOperand(b)
	if !ok1 || !ok2 {
		return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot apply - to %s and %s", a.Type(), b.Type())
	}
	return arith('-', x, y, line)
}

func multiply(a, b vm.Value, line int) (vm.Value, error) {
	switch {
	case vm.IsStringLike(a) && isIntegral(b):
		return repeat(a, b, line)
	case isIntegral(a) && vm.IsStringLike(b):
		return repeat(b, a, line)
	case vm.IsStringLike(a) || vm.IsStringLike(b):
		return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot multiply %s by %s", a.Type(), b.Type())
	}
	x, ok1 := numericOperand(a)
	y, ok2 := numericOperand(b)
	if !ok1 || !ok2 {
		return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot apply * to %s and %s", a.Type(), b.Type())
	}
	return arith('*', x, y, line)
}

// repeat defers the repetition; a pending repetition has its count scaled.
func repeat(s, n vm.Value, line int) (vm.Value, error) {
	count, _ := vm.AsInt64(n)
	switch r := s.(type) {
	case vm.RepeatedValue:
		c, ok := mulInt64(r.Count, count)
		if !ok {
			return nil, vm.Errorf(vm.MathError, line, "repeat count overflows long")
		}
		return vm.RepeatedValue{Base: r.Base, Count: c}, nil
	default:
		return vm.RepeatedValue{Base: vm.Text(s), Count: count}, nil
	}
}

func divide(op string, a, b vm.Value, line int) (vm.Value, error) {
	if !vm.IsNumeric(a) || !vm.IsNumeric(b) {
		return nil, vm.Errorf(vm.MathError, line, "%s requires numeric operands, got %s and %s", op, a.Type(), b.Type())
	}
	if f, _ := vm.AsFloat64(b); f == 0 {
		if op == "%" {
			return nil, vm.Errorf(vm.MathError, line, "modulo by zero")
		}
		return nil, vm.Errorf(vm.MathError, line, "division by zero")
	}
	if isDouble(a) || isDouble(b) {
		x, _ := vm.AsFloat64(a)
		y, _ := vm.AsFloat64(b)
		if op == "%" {
			return vm.DoubleValue(math.Mod(x, y)), nil
		}
		return vm.DoubleValue(x / y), nil
	}
	x, _ := vm.AsInt64(a)
	y, _ := vm.AsInt64(b)
	wide := a.Type() == vm.TypeLong || b.Type() == vm.TypeLong
	if x == math.MinInt64 && y == -1 {
		return nil, vm.Errorf(vm.MathError, line, "%d %s %d overflows long", x, op, y)
	}
	r := x / y
	if op == "%" {
		r = x % y
	}
	if wide {
		return vm.LongValue(r), nil
	}
	return vm.IntOrLong(r), nil
}

func arith(op byte, a, b vm.Value, line int) (vm.Value, error) {
	if isDouble(a) || isDouble(b) {
		x, _ := vm.AsFloat64(a)
		y, _ := vm.AsFloat64(b)
		switch op {
		case '+':
			return vm.DoubleValue(x + y), nil
		case '-':
			return vm.DoubleValue(x - y), nil
		default:
			return vm.DoubleValue(x * y), nil
		}
	}
	x, _ := vm.AsInt64(a)
	y, _ := vm.AsInt64(b)
	var (
		r  int64
		ok bool
	)
	switch op {
	case '+':
		r, ok = addInt64(x, y)
	case '-':
		r, ok = addInt64(x, -y)
		if y == math.MinInt64 {
			ok = false
		}
	default:
		r, ok = mulInt64(x, y)
	}
	if !ok {
		return nil, vm.Errorf(vm.MathError, line, "%d %c %d overflows long", x, op, y)
	}
	if a.Type() == vm.TypeLong || b.Type() == vm.TypeLong {
		return vm.LongValue(r), nil
	}
	// int results that leave the 32-bit range are promoted to long
	return vm.IntOrLong(r), nil
}

func addInt64(x, y int64) (int64, bool) {
	r := x + y
	if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

func mulInt64(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	if (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	r := x * y
	if r/y != x {
		return 0, false
	}
	return r, true
}

func compare(op string, a, b vm.Value, line int) (vm.Value, error) {
	var c int
	switch {
	case vm.IsNumeric(a) && vm.IsNumeric(b):
		c = compareNumbers(a, b)
	case vm.IsStringLike(a) && vm.IsStringLike(b):
		x, err := materialize(a, line)
		if err != nil {
			return nil, err
		}
		y, err := materialize(b, line)
		if err != nil {
			return nil, err
		}
		c = strings.Compare(vm.Text(x), vm.Text(y))
	case isBool(a) && isBool(b):
		return nil, vm.Errorf(vm.TypeMismatchError, line, "booleans only support == and !=, not %s", op)
	default:
		return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot compare %s with %s", a.Type(), b.Type())
	}
	switch op {
	case ">":
		return vm.BoolValue(c > 0), nil
	case "<":
		return vm.BoolValue(c < 0), nil
	case ">=":
		return vm.BoolValue(c >= 0), nil
	default:
		return vm.BoolValue(c <= 0), nil
	}
}

func compareNumbers(a, b vm.Value) int {
	if isIntegral(a) && isIntegral(b) {
		x, _ := vm.AsInt64(a)
		y, _ := vm.AsInt64(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	x, _ := vm.AsFloat64(a)
	y, _ := vm.AsFloat64(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func equal(op string, a, b vm.Value, line int) (vm.Value, error) {
	var eq bool
	_, nullA := a.(vm.NullValue)
	_, nullB := b.(vm.NullValue)
	switch {
	case nullA || nullB:
		eq = nullA && nullB
	case vm.IsNumeric(a) && vm.IsNumeric(b):
		eq = compareNumbers(a, b) == 0
		if isDouble(a) || isDouble(b) {
			x, _ := vm.AsFloat64(a)
			y, _ := vm.AsFloat64(b)
			eq = x == y
		}
	case vm.IsStringLike(a) && vm.IsStringLike(b):
		if textLen(a) != textLen(b) {
			eq = false
			break
		}
		x, err := materialize(a, line)
		if err != nil {
			return nil, err
		}
		y, err := materialize(b, line)
		if err != nil {
			return nil, err
		}
		eq = vm.Text(x) == vm.Text(y)
	case isBool(a) && isBool(b):
		eq = a.(vm.BoolValue) == b.(vm.BoolValue)
	default:
		return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot compare %s with %s", a.Type(), b.Type())
	}
	if op == "!=" {
		eq = !eq
	}
	return vm.BoolValue(eq), nil
}

func logical(op string, a, b vm.Value, line int) (vm.Value, error) {
	for _, v := range []vm.Value{a, b} {
		if !isBool(v) && !vm.IsNumeric(v) {
			return nil, vm.Errorf(vm.TypeMismatchError, line, "%s cannot be used as a condition in %s", v.Type(), op)
		}
	}
	if op == "&&" {
		return vm.BoolValue(vm.Truthy(a) && vm.Truthy(b)), nil
	}
	return vm.BoolValue(vm.Truthy(a) || vm.Truthy(b)), nil
}

func negate(v vm.Value, line int) (vm.Value, error) {
	switch n := v.(type) {
	case vm.IntValue:
		return vm.IntOrLong(-int64(n)), nil
	case vm.LongValue:
		if n == math.MinInt64 {
			return nil, vm.Errorf(vm.MathError, line, "negating %d overflows long", int64(n))
		}
		return -n, nil
	case vm.DoubleValue:
		return -n, nil
	}
	return nil, vm.Errorf(vm.MathError, line, "cannot negate %s", v.Type())
}

// stepBy applies ++ or -- with a single operand.
func stepBy(v vm.Value, op string, line int) (vm.Value, error) {
	delta := int64(1)
	if op == "--" {
		delta = -1
	}
	switch n := v.(type) {
	case vm.IntValue:
		return vm.IntOrLong(int64(n) + delta), nil
	case vm.LongValue:
		r, ok := addInt64(int64(n), delta)
		if !ok {
			return nil, vm.Errorf(vm.MathError, line, "%d %s overflows long", int64(n), op)
		}
		return vm.LongValue(r), nil
	case vm.DoubleValue:
		return n + vm.DoubleValue(delta), nil
	}
	return nil, vm.Errorf(vm.MathError, line, "%s requires a numeric operand, got %s", op, v.Type())
}

// concatDigits joins the decimal digits of two integers: 12 ++ 14 is 1214.
// The result is an int when it fits and a long otherwise.
func concatDigits(a, b vm.Value, line int) (vm.Value, error) {
	x, ok1 := vm.AsInt64(a)
	y, ok2 := vm.AsInt64(b)
	if !ok1 || !ok2 {
		return nil, vm.Errorf(vm.MathError, line, "++ requires integer operands, got %s and %s", a.Type(), b.Type())
	}
	if y < 0 {
		return nil, vm.Errorf(vm.MathError, line, "cannot append the digits of negative number %d", y)
	}
	s := strconv.FormatInt(x, 10) + strconv.FormatInt(y, 10)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, vm.Errorf(vm.MathError, line, "%d ++ %d overflows long", x, y)
	}
	return vm.IntOrLong(n), nil
}
