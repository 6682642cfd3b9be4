// internal/command/errors.go
package command

import (
	"errors"
	"fmt"

	"github.com/tamzrod/nilan-modbus/internal/registers"
)

// ErrValidation matches every rejected command value.
var ErrValidation = errors.New("command: invalid value")

// ValidationError is a command rejected before any I/O.
type ValidationError struct {
	Attribute registers.Attribute
	Value     any
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("command: %s: invalid value %v: %s", e.Attribute, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// WriteError is a command that reached the transport and failed there.
// The device state is unknown; the local state was not changed.
type WriteError struct {
	Attribute registers.Attribute
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("command: %s: write failed: %v", e.Attribute, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func invalid(a registers.Attribute, v any, format string, args ...any) error {
	return &ValidationError{Attribute: a, Value: v, Reason: fmt.Sprintf(format, args...)}
}
