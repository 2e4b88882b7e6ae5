package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies time to the engine.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits on a timer.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunContext is the per-run state shared between the engine and whoever
// may cancel the run.
type RunContext struct {
	ID        string
	StartedAt time.Time
	// Budget is the longest the run may take; zero means no limit.
	Budget time.Duration

	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	cancels []context.CancelFunc
}

// NewRunContext creates a run with a fresh ID.
func NewRunContext(startedAt time.Time, budget time.Duration) *RunContext {
	return &RunContext{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Budget:    budget,
		done:      make(chan struct{}),
	}
}

// Cancel stops the run. Contexts returned by Bind are done by the time
// Cancel returns, so no device is energised for the run afterwards. Safe to
// call more than once.
func (rc *RunContext) Cancel() {
	rc.mu.Lock()
	if !rc.closed {
		rc.closed = true
		close(rc.done)
	}
	cancels := rc.cancels
	rc.cancels = nil
	rc.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Bind derives a context from ctx that Cancel ends synchronously.
func (rc *RunContext) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(ctx)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		cancel()
	} else {
		rc.cancels = append(rc.cancels, cancel)
	}
	return child, cancel
}

// Cancelled reports whether Cancel was called.
func (rc *RunContext) Cancelled() bool {
	select {
	case <-rc.done:
		return true
	default:
		return false
	}
}

// Done is closed by Cancel.
func (rc *RunContext) Done() <-chan struct{} {
	return rc.done
}

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusAborted   Status = "aborted"
)

// Reason explains an aborted run.
type Reason string

const (
	ReasonCancelled   Reason = "cancelled"
	ReasonMaxDuration Reason = "max_duration"
)

// ActionFailure records one action that failed or was invalid.
type ActionFailure struct {
	Index  int    `json:"index"`
	Kind   Kind   `json:"kind"`
	Action string `json:"action"`
	Error  string `json:"error"`

	Err error `json:"-"`
}

// Outcome summarises a run.
type Outcome struct {
	RunID     string          `json:"run_id"`
	Sequence  string          `json:"sequence"`
	Status    Status          `json:"status"`
	Reason    Reason          `json:"reason,omitempty"`
	Executed  int             `json:"executed"`
	Skipped   int             `json:"skipped"`
	Failures  []ActionFailure `json:"failures,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
}

// Err returns an error wrapping ErrAborted for aborted runs, nil otherwise.
func (o Outcome) Err() error {
	if o.Status != StatusAborted {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAborted, o.Reason)
}
