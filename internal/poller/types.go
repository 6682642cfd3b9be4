// internal/poller/types.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/nilan-modbus/internal/notify"
	"github.com/tamzrod/nilan-modbus/internal/registers"
)

// FieldError is a failed read of one attribute.
type FieldError struct {
	Attribute registers.Attribute
	Err       error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Attribute, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// Result is what one poll cycle did.
// State is already updated when a Result is returned.
type Result struct {
	At time.Time

	Read    []registers.Attribute // decoded and stored, in poll order
	Failed  []FieldError          // isolated failures, value left stale
	Skipped []registers.Attribute // not attempted after an abort

	// Aborted is the link-level error that ended the cycle early.
	Aborted error

	Events []notify.ChangeEvent
}

// OK reports whether every attempted read succeeded.
func (r Result) OK() bool {
	return r.Aborted == nil && len(r.Failed) == 0
}

// Err joins the abort cause and every isolated failure.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failed)+1)
	if r.Aborted != nil {
		errs = append(errs, fmt.Errorf("cycle aborted: %w", r.Aborted))
	}
	for _, fe := range r.Failed {
		if r.Aborted != nil && errors.Is(fe.Err, r.Aborted) {
			continue
		}
		errs = append(errs, fe)
	}
	return errors.Join(errs...)
}
