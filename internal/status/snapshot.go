// internal/status/snapshot.go
package status

import (
	"sync"
	"time"
)

// Snapshot is the link health as of the last poll cycle.
// It is observational only: nothing in the poll path reads it back.
type Snapshot struct {
	Health         uint16    `json:"health"`
	LastErrorCode  uint16    `json:"last_error_code"`
	SecondsInError uint16    `json:"seconds_in_error"`
	FailedReads    int       `json:"failed_reads"`
	LastCycle      time.Time `json:"last_cycle"`
}

// HealthName is the text form of Health.
func (s Snapshot) HealthName() string { return HealthName(s.Health) }

// Tracker derives a Snapshot from cycle outcomes.
// Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	snap       Snapshot
	errorSince time.Time
	now        func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		snap: Snapshot{Health: HealthUnknown},
		now:  time.Now,
	}
}

// Record folds one cycle outcome into the snapshot.
// aborted marks a link-level failure; failed counts isolated read failures;
// err is the cycle's joined error, nil when every read succeeded.
func (t *Tracker) Record(aborted bool, failed int, err error) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.snap.LastCycle = now
	t.snap.FailedReads = failed

	switch {
	case aborted:
		t.snap.Health = HealthError
	case failed > 0:
		t.snap.Health = HealthDegraded
	default:
		// Recovery resets the error trail.
		t.snap.Health = HealthOK
		t.snap.LastErrorCode = 0
		t.errorSince = time.Time{}
		t.snap.SecondsInError = 0
		return t.snap
	}

	t.snap.LastErrorCode = ErrorCode(err)
	if t.errorSince.IsZero() {
		t.errorSince = now
	}
	t.snap.SecondsInError = t.secondsInError(now)
	return t.snap
}

// Disable marks polling as stopped.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Health = HealthDisabled
}

// Snapshot returns the current snapshot with SecondsInError advanced to now.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.snap
	if !t.errorSince.IsZero() {
		s.SecondsInError = t.secondsInError(t.now())
	}
	return s
}

func (t *Tracker) secondsInError(now time.Time) uint16 {
	sec := int64(now.Sub(t.errorSince) / time.Second)
	switch {
	case sec < 0:
		return 0
	case sec > MaxSecondsInError:
		return MaxSecondsInError
	}
	return uint16(sec)
}
