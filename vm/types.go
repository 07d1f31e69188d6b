package vm

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Type is a normalized type tag.
type Type string

const (
	TypeNone    Type = ""
	TypeInt     Type = "int"
	TypeLong    Type = "long"
	TypeDouble  Type = "double"
	TypeBoolean Type = "boolean"
	TypeString  Type = "string"
	TypeNull    Type = "null"
	// TypeObject is only used by host signatures; it accepts any value.
	TypeObject Type = "object"
)

// Bindable reports whether t may be used as a static variable type.
func (t Type) Bindable() bool {
	switch t {
	case TypeInt, TypeLong, TypeDouble, TypeBoolean, TypeString:
		return true
	}
	return false
}

func (t Type) String() string {
	if t == TypeNone {
		return "untyped"
	}
	return string(t)
}

// NormalizeTypeName maps the accepted spellings of a type name onto its tag.
// Matching is case-insensitive.
func NormalizeTypeName(raw string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "int", "integer":
		return TypeInt, true
	case "long":
		return TypeLong, true
	case "double", "float":
		return TypeDouble, true
	case "bool", "boolean":
		return TypeBoolean, true
	case "string", "str":
		return TypeString, true
	case "null", "void":
		return TypeNull, true
	case "object", "any":
		return TypeObject, true
	}
	return TypeNone, false
}

// Widens reports whether a value of type from may stand in for type to
// under the primitive compatibility table. The same table backs the lenient
// static typing policy and coercible host dispatch.
func Widens(from, to Type) bool {
	switch from {
	case TypeInt:
		return to == TypeLong || to == TypeDouble
	case TypeLong:
		return to == TypeDouble
	}
	return false
}

// Convert converts v to the target type.
//
// Converting a string to int yields the code point of its first character
// (0 for the empty string); it is not a numeric parse. Strings convert to
// long and double by parsing.
func Convert(v Value, to Type) (Value, error) {
	if _, ok := v.(UninitValue); ok {
		return nil, Errorf(UnresolvedReferenceError, 0, "use of uninitialized value")
	}
	v, err := Materialize(v)
	if err != nil {
		return nil, err
	}
	switch to {
	case TypeInt:
		return toInt(v)
	case TypeLong:
		return toLong(v)
	case TypeDouble:
		return toDouble(v)
	case TypeBoolean:
		return toBool(v), nil
	case TypeString:
		return StrValue(Text(v)), nil
	case TypeNull:
		return Null, nil
	case TypeObject:
		return v, nil
	}
	return nil, Errorf(SyntaxError, 0, "unknown type %q", string(to))
}

func toInt(v Value) (Value, error) {
	switch n := v.(type) {
	case IntValue:
		return n, nil
	case LongValue:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, Errorf(MathError, 0, "%d overflows int", int64(n))
		}
		return IntValue(n), nil
	case DoubleValue:
		f := math.Trunc(float64(n))
		if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, Errorf(MathError, 0, "%s overflows int", n)
		}
		return IntValue(f), nil
	case BoolValue:
		if n {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	case StrValue:
		if n == "" {
			return IntValue(0), nil
		}
		r, _ := utf8.DecodeRuneInString(string(n))
		return IntValue(r), nil
	}
	return nil, Errorf(MathError, 0, "cannot convert %s to int", v.Type())
}

func toLong(v Value) (Value, error) {
	switch n := v.(type) {
	case IntValue:
		return LongValue(n), nil
	case LongValue:
		return n, nil
	case DoubleValue:
		f := math.Trunc(float64(n))
		if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, Errorf(MathError, 0, "%s overflows long", n)
		}
		return LongValue(f), nil
	case BoolValue:
		if n {
			return LongValue(1), nil
		}
		return LongValue(0), nil
	case StrValue:
		i, err := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
		if err != nil {
			return nil, Errorf(MathError, 0, "cannot convert %q to long", string(n))
		}
		return LongValue(i), nil
	}
	return nil, Errorf(MathError, 0, "cannot convert %s to long", v.Type())
}

func toDouble(v Value) (Value, error) {
	switch n := v.(type) {
	case IntValue, LongValue, DoubleValue:
		f, _ := AsFloat64(n)
		return DoubleValue(f), nil
	case BoolValue:
		if n {
			return DoubleValue(1), nil
		}
		return DoubleValue(0), nil
	case StrValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		if err != nil {
			return nil, Errorf(MathError, 0, "cannot convert %q to double", string(n))
		}
		return DoubleValue(f), nil
	}
	return nil, Errorf(MathError, 0, "cannot convert %s to double", v.Type())
}

func toBool(v Value) BoolValue {
	switch n := v.(type) {
	case BoolValue:
		return n
	case IntValue, LongValue, DoubleValue:
		f, _ := AsFloat64(n)
		return BoolValue(f != 0)
	case StrValue:
		switch strings.ToLower(string(n)) {
		case "1", "true":
			return BoolTrue
		case "0", "false", "":
			return BoolFalse
		}
		return BoolTrue
	}
	return BoolFalse
}

// Truthy converts any value to a boolean using the boolean conversion rules.
// Repetitions are judged without being expanded: two or more copies of a
// non-empty base never spell one of the false words.
func Truthy(v Value) bool {
	if r, ok := v.(RepeatedValue); ok {
		switch {
		case r.Len() == 0:
			return false
		case r.Count == 1:
			return bool(toBool(StrValue(r.Base)))
		}
		return true
	}
	return bool(toBool(v))
}
