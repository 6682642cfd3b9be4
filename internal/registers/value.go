// internal/registers/value.go
package registers

import (
	"encoding/json"
	"math"
	"strconv"
)

// Kind is the domain type carried by a Value.
type Kind uint8

const (
	KindNone Kind = iota // never read
	KindFloat
	KindInt
	KindEnum
)

// Value is a decoded attribute value.
// The zero Value is "nil": the attribute has never been read.
type Value struct {
	kind  Kind
	f     float64
	i     int64
	label string
}

// Float returns a scaled numeric value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Int returns an integer value passed through unscaled.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Enum returns an enumeration value. code is the raw register value.
func Enum(code uint16, label string) Value {
	return Value{kind: KindEnum, i: int64(code), label: label}
}

// Label returns an enumeration value identified only by its label.
// Encoding resolves the code from the attribute's rule.
func Label(label string) Value {
	return Value{kind: KindEnum, i: -1, label: label}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNil() bool  { return v.kind == KindNone }
func (v Value) Text() string { return v.label }

// Code returns the raw code of an enumeration value and whether it is known.
func (v Value) Code() (uint16, bool) {
	if v.kind != KindEnum || v.i < 0 || v.i > math.MaxUint16 {
		return 0, false
	}
	return uint16(v.i), true
}

// Number returns the value as float64. Enumerations report their code.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindEnum:
		if v.i < 0 {
			return 0, false
		}
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Equal reports whether two values carry the same decoded content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindInt:
		return v.i == o.i
	case KindEnum:
		return v.label == o.label
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindEnum:
		return v.label
	default:
		return "<nil>"
	}
}

// Interface returns the value as a plain Go value, nil when never read.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return v.i
	case KindEnum:
		return v.label
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
