package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the closed set of runtime values a script can hold.
type Value interface {
	isValue()
	Type() Type
	String() string
}

type IntValue int32

func (IntValue) isValue()         {}
func (IntValue) Type() Type       { return TypeInt }
func (i IntValue) String() string { return strconv.FormatInt(int64(i), 10) }

type LongValue int64

func (LongValue) isValue()         {}
func (LongValue) Type() Type       { return TypeLong }
func (l LongValue) String() string { return strconv.FormatInt(int64(l), 10) }

type DoubleValue float64

func (DoubleValue) isValue()   {}
func (DoubleValue) Type() Type { return TypeDouble }

func (d DoubleValue) String() string {
	f := float64(d)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

type BoolValue bool

func (BoolValue) isValue()   {}
func (BoolValue) Type() Type { return TypeBoolean }

var (
	BoolTrue  = BoolValue(true)
	BoolFalse = BoolValue(false)
)

func (b BoolValue) String() string {
	if b {
		return "true"
	}
	return "false"
}

type StrValue string

func (StrValue) isValue()         {}
func (StrValue) Type() Type       { return TypeString }
func (s StrValue) String() string { return string(s) }

// MaxStringBytes bounds the size of a string built by concatenation or by
// expanding a repetition.
const MaxStringBytes = 64 << 20

// RepeatedValue is a string repetition that has not been expanded yet.
// Multiplying it again scales Count; it is materialized only when it is
// concatenated or printed.
type RepeatedValue struct {
	Base  string
	Count int64
}

func (RepeatedValue) isValue()   {}
func (RepeatedValue) Type() Type { return TypeString }

// Len is the byte length of the expanded string, saturating at MaxInt64.
func (r RepeatedValue) Len() int64 {
	if r.Count <= 0 || r.Base == "" {
		return 0
	}
	if r.Count > math.MaxInt64/int64(len(r.Base)) {
		return math.MaxInt64
	}
	return int64(len(r.Base)) * r.Count
}

// String expands the repetition. One that would exceed MaxStringBytes is
// rendered unexpanded as `"base" * count`.
func (r RepeatedValue) String() string {
	n := r.Len()
	switch {
	case n == 0:
		return ""
	case n > MaxStringBytes:
		return fmt.Sprintf("%q * %d", r.Base, r.Count)
	}
	return strings.Repeat(r.Base, int(r.Count))
}

// UninitValue marks a variable that was declared but never assigned.
type UninitValue struct{}

func (UninitValue) isValue()       {}
func (UninitValue) Type() Type     { return TypeNone }
func (UninitValue) String() string { return "<uninitialized>" }

type NullValue struct{}

func (NullValue) isValue()       {}
func (NullValue) Type() Type     { return TypeNull }
func (NullValue) String() string { return "null" }

var (
	Uninit = UninitValue{}
	Null   = NullValue{}
)

// IsNumeric reports whether v is an int, long or double.
func IsNumeric(v Value) bool {
	switch v.(type) {
	case IntValue, LongValue, DoubleValue:
		return true
	}
	return false
}

// IsStringLike reports whether v is a string or a pending repetition.
func IsStringLike(v Value) bool {
	switch v.(type) {
	case StrValue, RepeatedValue:
		return true
	}
	return false
}

// Text returns the textual form of v, expanding repetitions.
func Text(v Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}

// Materialize expands a RepeatedValue and returns every other value
// unchanged. Expansions larger than MaxStringBytes fail with a
// ResourceExhaustedError carrying no line.
func Materialize(v Value) (Value, error) {
	r, ok := v.(RepeatedValue)
	if !ok {
		return v, nil
	}
	if n := r.Len(); n > MaxStringBytes {
		return nil, Errorf(ResourceExhaustedError, 0, "string of %d bytes exceeds the %d byte limit", n, MaxStringBytes)
	}
	return StrValue(r.String()), nil
}

// IntOrLong returns the narrowest integer value holding n.
func IntOrLong(n int64) Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return IntValue(n)
	}
	return LongValue(n)
}

// AsInt64 extracts an integer from an int or long value.
func AsInt64(v Value) (int64, bool) {
	switch n := v.(type) {
	case IntValue:
		return int64(n), true
	case LongValue:
		return int64(n), true
	}
	return 0, false
}

// AsFloat64 extracts a float from any numeric value.
func AsFloat64(v Value) (float64, bool) {
	switch n := v.(type) {
	case IntValue:
		return float64(n), true
	case LongValue:
		return float64(n), true
	case DoubleValue:
		return float64(n), true
	}
	return 0, false
}
