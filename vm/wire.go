package vm

import "fmt"

// WireValue is the tagged form of a Value used wherever values leave the
// process or are hashed. Only the fields relevant to Kind are set.
type WireValue struct {
	Kind  string
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

const (
	wireRepeated = "repeated"
	wireUninit   = "uninit"
)

func ToWire(v Value) WireValue {
	switch n := v.(type) {
	case IntValue:
		return WireValue{Kind: string(TypeInt), Int: int64(n)}
	case LongValue:
		return WireValue{Kind: string(TypeLong), Int: int64(n)}
	case DoubleValue:
		return WireValue{Kind: string(TypeDouble), Float: float64(n)}
	case BoolValue:
		return WireValue{Kind: string(TypeBoolean), Bool: bool(n)}
	case StrValue:
		return WireValue{Kind: string(TypeString), Str: string(n)}
	case RepeatedValue:
		return WireValue{Kind: wireRepeated, Str: n.Base, Int: n.Count}
	case UninitValue:
		return WireValue{Kind: wireUninit}
	}
	return WireValue{Kind: string(TypeNull)}
}

func FromWire(w WireValue) (Value, error) {
	switch w.Kind {
	case string(TypeInt):
		return IntValue(w.Int), nil
	case string(TypeLong):
		return LongValue(w.Int), nil
	case string(TypeDouble):
		return DoubleValue(w.Float), nil
	case string(TypeBoolean):
		return BoolValue(w.Bool), nil
	case string(TypeString):
		return StrValue(w.Str), nil
	case wireRepeated:
		return RepeatedValue{Base: w.Str, Count: w.Int}, nil
	case wireUninit:
		return Uninit, nil
	case string(TypeNull):
		return Null, nil
	}
	return nil, fmt.Errorf("unknown value kind %q", w.Kind)
}
