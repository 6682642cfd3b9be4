// internal/registers/codec.go
package registers

import (
	"math"
	"sort"
)

// Rule maps raw register words to domain values and back.
// Both directions are total: decode never fails and encode clamps.
type Rule interface {
	decode(words []uint16) Value
	encode(v Value) []uint16
}

// Linear scales a single word by Factor (raw × Factor).
// Signed words are read as two's complement int16.
type Linear struct {
	Factor float64
	Signed bool
}

// EnumMap maps raw codes to labels. Unknown codes decode to Default.
type EnumMap struct {
	Codes   map[uint16]string
	Default string
}

// Identity passes the raw word through as an integer.
type Identity struct{}

// Decode applies the attribute's rule to the raw words.
// Missing words read as zero.
func Decode(spec AttributeSpec, raw []uint16) Value {
	return rule(spec).decode(raw)
}

// Encode converts a domain value to raw words for spec's register.
func Encode(spec AttributeSpec, v Value) []uint16 {
	return rule(spec).encode(v)
}

// Recognized reports whether raw decodes to a declared value.
// Only enumerations can fall back; other rules always report true.
func Recognized(spec AttributeSpec, raw []uint16) bool {
	m, ok := rule(spec).(EnumMap)
	if !ok {
		return true
	}
	_, ok = m.Codes[first(raw)]
	return ok
}

func rule(spec AttributeSpec) Rule {
	if spec.Rule == nil {
		return Identity{}
	}
	return spec.Rule
}

func first(words []uint16) uint16 {
	if len(words) == 0 {
		return 0
	}
	return words[0]
}

// ---- Linear ----

func (l Linear) decode(words []uint16) Value {
	w := first(words)
	raw := float64(w)
	if l.Signed {
		raw = float64(int16(w))
	}
	// Dividing by an integral inverse keeps 2150 → 21.5 exact.
	if inv, ok := l.inverse(); ok {
		return Float(raw / inv)
	}
	return Float(raw * l.Factor)
}

func (l Linear) encode(v Value) []uint16 {
	f, ok := v.Number()
	if !ok || math.IsNaN(f) {
		return []uint16{0}
	}
	return []uint16{l.word(l.Raw(f))}
}

// Raw returns the unclamped register integer for f: round(f / Factor),
// with halves rounded away from zero.
func (l Linear) Raw(f float64) float64 {
	if inv, ok := l.inverse(); ok {
		return math.Round(f * inv)
	}
	if l.Factor == 0 {
		return 0
	}
	return math.Round(f / l.Factor)
}

// Range returns the representable raw interval.
func (l Linear) Range() (lo, hi float64) {
	if l.Signed {
		return math.MinInt16, math.MaxInt16
	}
	return 0, math.MaxUint16
}

func (l Linear) word(raw float64) uint16 {
	lo, hi := l.Range()
	switch {
	case raw < lo:
		raw = lo
	case raw > hi:
		raw = hi
	}
	if l.Signed {
		return uint16(int16(raw))
	}
	return uint16(raw)
}

func (l Linear) inverse() (float64, bool) {
	if l.Factor <= 0 || l.Factor >= 1 {
		return 0, false
	}
	inv := 1 / l.Factor
	r := math.Round(inv)
	if math.Abs(inv-r) > 1e-9 {
		return 0, false
	}
	return r, true
}

// ---- EnumMap ----

func (m EnumMap) decode(words []uint16) Value {
	code := first(words)
	if label, ok := m.Codes[code]; ok {
		return Enum(code, label)
	}
	return Enum(code, m.Default)
}

func (m EnumMap) encode(v Value) []uint16 {
	if code, ok := m.Lookup(v.Text()); ok {
		return []uint16{code}
	}
	if code, ok := v.Code(); ok {
		if _, known := m.Codes[code]; known {
			return []uint16{code}
		}
	}
	if code, ok := m.Lookup(m.Default); ok {
		return []uint16{code}
	}
	return []uint16{0}
}

// Lookup returns the code declared for label.
func (m EnumMap) Lookup(label string) (uint16, bool) {
	for code, l := range m.Codes {
		if l == label {
			return code, true
		}
	}
	return 0, false
}

// Labels returns the declared labels ordered by code.
func (m EnumMap) Labels() []string {
	codes := make([]int, 0, len(m.Codes))
	for c := range m.Codes {
		codes = append(codes, int(c))
	}
	sort.Ints(codes)

	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, m.Codes[uint16(c)])
	}
	return out
}

// ---- Identity ----

func (Identity) decode(words []uint16) Value {
	return Int(int64(first(words)))
}

func (Identity) encode(v Value) []uint16 {
	f, ok := v.Number()
	if !ok || math.IsNaN(f) {
		return []uint16{0}
	}
	f = math.Round(f)
	switch {
	case f < 0:
		f = 0
	case f > math.MaxUint16:
		f = math.MaxUint16
	}
	return []uint16{uint16(f)}
}
