package vm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTypeName(t *testing.T) {
	for raw, want := range map[string]Type{
		"int": TypeInt, "Integer": TypeInt, "LONG": TypeLong,
		"float": TypeDouble, "bool": TypeBoolean, "Boolean": TypeBoolean,
		"str": TypeString, "void": TypeNull, "any": TypeObject,
	} {
		got, ok := NormalizeTypeName(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := NormalizeTypeName("char")
	require.False(t, ok)
	require.False(t, TypeNull.Bindable())
	require.True(t, TypeString.Bindable())
}

func TestWidens(t *testing.T) {
	require.True(t, Widens(TypeInt, TypeLong))
	require.True(t, Widens(TypeInt, TypeDouble))
	require.True(t, Widens(TypeLong, TypeDouble))
	require.False(t, Widens(TypeLong, TypeInt))
	require.False(t, Widens(TypeDouble, TypeLong))
	require.False(t, Widens(TypeBoolean, TypeInt))
	require.False(t, Widens(TypeString, TypeString))
}

func TestConvert(t *testing.T) {
	tests := []struct {
		in   Value
		to   Type
		want Value
	}{
		{StrValue("A"), TypeInt, IntValue(65)},
		{StrValue(""), TypeInt, IntValue(0)},
		{StrValue("é!"), TypeInt, IntValue(233)},
		{StrValue(" 42 "), TypeLong, LongValue(42)},
		{StrValue("2.5"), TypeDouble, DoubleValue(2.5)},
		{StrValue("yes"), TypeBoolean, BoolTrue},
		{StrValue("FALSE"), TypeBoolean, BoolFalse},
		{StrValue(""), TypeBoolean, BoolFalse},
		{DoubleValue(-2.9), TypeInt, IntValue(-2)},
		{DoubleValue(3.9), TypeLong, LongValue(3)},
		{LongValue(7), TypeInt, IntValue(7)},
		{IntValue(7), TypeDouble, DoubleValue(7)},
		{BoolTrue, TypeLong, LongValue(1)},
		{IntValue(0), TypeBoolean, BoolFalse},
		{DoubleValue(0.5), TypeBoolean, BoolTrue},
		{DoubleValue(2), TypeString, StrValue("2.0")},
		{RepeatedValue{Base: "ab", Count: 2}, TypeString, StrValue("abab")},
		{Null, TypeString, StrValue("null")},
		{IntValue(3), TypeNull, Null},
		{IntValue(3), TypeObject, IntValue(3)},
	}
	for _, tt := range tests {
		got, err := Convert(tt.in, tt.to)
		require.NoError(t, err, "%v -> %s", tt.in, tt.to)
		require.Equal(t, tt.want, got, "%v -> %s", tt.in, tt.to)
	}
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		in   Value
		to   Type
		kind *Error
	}{
		{LongValue(math.MaxInt32 + 1), TypeInt, ErrMath},
		{DoubleValue(math.NaN()), TypeInt, ErrMath},
		{DoubleValue(1e300), TypeLong, ErrMath},
		{StrValue("abc"), TypeLong, ErrMath},
		{StrValue("abc"), TypeDouble, ErrMath},
		{Null, TypeInt, ErrMath},
		{Uninit, TypeString, ErrUnresolved},
		{IntValue(1), Type("char"), ErrSyntax},
	}
	for _, tt := range tests {
		_, err := Convert(tt.in, tt.to)
		require.True(t, errors.Is(err, tt.kind), "%v -> %s: %v", tt.in, tt.to, err)
	}
}

func TestValueText(t *testing.T) {
	require.Equal(t, "3.0", DoubleValue(3).String())
	require.Equal(t, "0.1", DoubleValue(0.1).String())
	require.Equal(t, "1000000000000000000000.0", DoubleValue(1e21).String())
	require.Equal(t, "-Infinity", DoubleValue(math.Inf(-1)).String())
	require.Equal(t, "", RepeatedValue{Base: "x", Count: 0}.String())
	require.Equal(t, "null", Text(nil))
	require.Equal(t, IntValue(5), IntOrLong(5))
	require.Equal(t, LongValue(math.MaxInt32+1), IntOrLong(math.MaxInt32+1))
	require.True(t, Truthy(RepeatedValue{Base: "1", Count: 1}))
	require.False(t, Truthy(Null))
}

func TestOversizedRepetition(t *testing.T) {
	huge := RepeatedValue{Base: "ab", Count: 4611686018427387904}
	require.Equal(t, int64(math.MaxInt64), huge.Len())
	require.Equal(t, `"ab" * 4611686018427387904`, huge.String())
	require.Equal(t, huge.String(), Text(huge))

	_, err := Materialize(huge)
	require.True(t, errors.Is(err, ErrResourceExhausted), "got %v", err)
	for _, to := range []Type{TypeString, TypeInt, TypeLong, TypeDouble, TypeBoolean, TypeObject} {
		_, err := Convert(huge, to)
		require.True(t, errors.Is(err, ErrResourceExhausted), "%s: %v", to, err)
	}

	atLimit := RepeatedValue{Base: "x", Count: MaxStringBytes}
	v, err := Materialize(atLimit)
	require.NoError(t, err)
	require.Equal(t, MaxStringBytes, len(v.(StrValue)))
	_, err = Materialize(RepeatedValue{Base: "x", Count: MaxStringBytes + 1})
	require.True(t, errors.Is(err, ErrResourceExhausted))

	v, err = Materialize(IntValue(3))
	require.NoError(t, err)
	require.Equal(t, IntValue(3), v)
}

func TestTruthyRepetition(t *testing.T) {
	tests := []struct {
		in   RepeatedValue
		want bool
	}{
		{RepeatedValue{Base: "ab", Count: 4611686018427387904}, true},
		{RepeatedValue{Base: "0", Count: 2}, true},
		{RepeatedValue{Base: "0", Count: 1}, false},
		{RepeatedValue{Base: "FALSE", Count: 1}, false},
		{RepeatedValue{Base: "x", Count: 0}, false},
		{RepeatedValue{Base: "", Count: 5}, false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Truthy(tt.in), "%#v", tt.in)
		if tt.in.Len() > 16 {
			continue
		}
		// small repetitions agree with the expanded string
		b, err := Convert(tt.in, TypeBoolean)
		require.NoError(t, err)
		require.Equal(t, BoolValue(tt.want), b, "%#v", tt.in)
	}
}

func TestErrors(t *testing.T) {
	err := Errorf(MathError, 0, "division by zero")
	wrapped := Wrap(err, 4, "")
	require.True(t, errors.Is(wrapped, ErrMath))
	require.False(t, errors.Is(wrapped, ErrSyntax))
	require.Equal(t, "MathError (line 4): division by zero", wrapped.Error())
	require.Equal(t, 0, err.Line)

	// A line already set is kept.
	require.Equal(t, wrapped, Wrap(wrapped, 9, ""))

	host := Wrap(errors.New("disk full"), 2, "host call failed")
	kind, ok := KindOf(host)
	require.True(t, ok)
	require.Equal(t, UnknownHostFailure, kind)
	require.Equal(t, "UnknownHostFailure (line 2): host call failed: disk full", host.Error())

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
	require.Nil(t, Wrap(nil, 1, ""))
}

func TestFormatError(t *testing.T) {
	src := []string{"var a = 1", "var b = a / 0", "var c = 2"}
	out := FormatError(Errorf(MathError, 2, "division by zero"), src)
	require.Equal(t, "MathError (line 2): division by zero\n\n"+
		"    1 | var a = 1\n"+
		"    2 > var b = a / 0\n"+
		"    3 | var c = 2\n", out)

	require.Equal(t, "SyntaxError: x", FormatError(Errorf(SyntaxError, 0, "x"), src))
}

func TestScanHelpers(t *testing.T) {
	require.Equal(t, []string{"a", "f(b, c)", "\"d, e\""}, SplitTopLevel(" a , f(b, c), \"d, e\"", ','))
	require.Nil(t, SplitTopLevel("  ", ','))
	require.Equal(t, 2, FindAssign("x = y == 1"))
	require.Equal(t, -1, FindAssign("x == 1"))
	require.Equal(t, -1, FindAssign("x <= 1"))
	require.Equal(t, -1, FindAssign("\"a = b\""))
	require.Equal(t, 7, FindAssign("a != b = c"))

	inner, end, ok := ScanGroup("(a (\")\") b) c", 0)
	require.True(t, ok)
	require.Equal(t, "a (\")\") b", inner)
	require.Equal(t, 10, end)

	c, m, args, ok := ParseCallShape("Text.concat(\"a\", (1 + 2))")
	require.True(t, ok)
	require.Equal(t, "Text", c)
	require.Equal(t, "concat", m)
	require.Equal(t, []string{"\"a\"", "(1 + 2)"}, args)

	_, _, _, ok = ParseCallShape("Math.abs(1) + 2")
	require.False(t, ok)
	require.False(t, IsIdentifier("9a"))
	require.True(t, IsReserved("change"))
}
