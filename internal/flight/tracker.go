// Package flight provides the single-flight state machine shared by the
// orchestrators: Idle -> Pending -> {Succeeded, Failed}, and back to Pending
// on the next Begin.
package flight

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBusy is returned when an operation is already pending.
	ErrBusy = errors.New("operation already in progress")

	// ErrStale is returned when a result arrived after its owner was reset.
	ErrStale = errors.New("result discarded after reset")
)

// ValidationError is a precondition failure detected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// State of a Tracker.
type State int

const (
	Idle State = iota
	Pending
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Ticket identifies one admitted operation.
type Ticket struct {
	gen uint64
}

// Tracker admits at most one operation at a time and remembers how the last
// one ended. The generation lets an owner invalidate a pending operation so
// its eventual result can be recognised as stale.
type Tracker struct {
	mu    sync.Mutex
	state State
	gen   uint64
	err   error
}

// Begin admits a new operation unless one is pending.
func (t *Tracker) Begin() (Ticket, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Pending {
		return Ticket{}, false
	}
	t.gen++
	t.state = Pending
	t.err = nil
	return Ticket{gen: t.gen}, true
}

// Finish ends the operation and reports whether its ticket is still current.
// A stale ticket still releases the busy state but records nothing.
func (t *Tracker) Finish(tk Ticket, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := tk.gen == t.gen
	if t.state == Pending {
		if current {
			t.err = err
			t.state = Succeeded
			if err != nil {
				t.state = Failed
			}
		} else {
			t.state = Idle
		}
	}
	return current
}

// Current reports whether tk is still the latest ticket.
func (t *Tracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tk.gen == t.gen
}

// Invalidate makes every outstanding ticket stale. A pending operation stays
// pending until it finishes, so single-flight still holds.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.state != Pending {
		t.state = Idle
		t.err = nil
	}
}

// Reset returns a settled tracker to Idle. It does not affect a pending one.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pending {
		t.state = Idle
		t.err = nil
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Busy() bool { return t.State() == Pending }

// Err is the error of the last current operation, if it failed.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
