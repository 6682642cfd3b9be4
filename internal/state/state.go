// internal/state/state.go
package state

import (
	"time"

	"github.com/tamzrod/nilan-modbus/internal/registers"
)

// State is the in-memory mirror of the device.
// It is not safe for concurrent use; the owning controller serializes access.
type State struct {
	values  map[registers.Attribute]registers.Value
	updated map[registers.Attribute]time.Time
	now     func() time.Time
}

// New returns an empty state: every attribute reads as nil.
func New() *State {
	return &State{
		values:  make(map[registers.Attribute]registers.Value),
		updated: make(map[registers.Attribute]time.Time),
		now:     time.Now,
	}
}

// Get returns the last decoded value, or the nil Value if never read.
func (s *State) Get(a registers.Attribute) registers.Value {
	return s.values[a]
}

// Set stores v and returns the value it replaced.
// Setting a nil Value is ignored so a known value is never cleared.
func (s *State) Set(a registers.Attribute, v registers.Value) registers.Value {
	prev := s.values[a]
	if v.IsNil() {
		return prev
	}
	s.values[a] = v
	s.updated[a] = s.now()
	return prev
}

// UpdatedAt returns when a was last set; zero if never.
func (s *State) UpdatedAt(a registers.Attribute) time.Time {
	return s.updated[a]
}

// Snapshot copies the state for use outside the owning context.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Fields: make([]Field, 0, len(registers.Map)),
		At:     s.now(),
	}
	for _, spec := range registers.Map {
		snap.Fields = append(snap.Fields, Field{
			Spec:      spec,
			Value:     s.values[spec.Name],
			UpdatedAt: s.updated[spec.Name],
		})
	}
	return snap
}
