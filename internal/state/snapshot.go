// internal/state/snapshot.go
package state

import (
	"time"

	"github.com/tamzrod/nilan-modbus/internal/registers"
)

// Field is one attribute as seen at snapshot time.
type Field struct {
	Spec      registers.AttributeSpec
	Value     registers.Value
	UpdatedAt time.Time
}

// Known reports whether the attribute has ever been read.
func (f Field) Known() bool { return !f.Value.IsNil() }

// Snapshot is an immutable copy of the device state in register-map order.
type Snapshot struct {
	Fields []Field
	At     time.Time
}

// Get returns the value of a, nil if never read or unknown.
func (s Snapshot) Get(a registers.Attribute) registers.Value {
	for _, f := range s.Fields {
		if f.Spec.Name == a {
			return f.Value
		}
	}
	return registers.Value{}
}

// Present renders the snapshot as a flat attribute map.
// Never-read attributes are present with a nil value.
func (s Snapshot) Present() map[string]any {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		out[string(f.Spec.Name)] = f.Value.Interface()
	}
	return out
}

// Staleness returns how long ago each known attribute was updated.
func (s Snapshot) Staleness() map[registers.Attribute]time.Duration {
	out := make(map[registers.Attribute]time.Duration)
	for _, f := range s.Fields {
		if f.Known() {
			out[f.Spec.Name] = s.At.Sub(f.UpdatedAt)
		}
	}
	return out
}
