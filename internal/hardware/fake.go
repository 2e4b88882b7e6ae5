package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// The fakes below record every call. They are used by simulation mode and
// by tests in other packages.

// Call is one recorded device call.
type Call struct {
	Device string
	Op     string
	Arg    string
}

// String formats the call as device.op(arg).
func (c Call) String() string {
	return fmt.Sprintf("%s.%s(%s)", c.Device, c.Op, c.Arg)
}

// Recorder collects calls from several fakes in order.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) add(device, op, arg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Device: device, Op: op, Arg: arg})
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Strings returns the recorded calls formatted with Call.String.
func (r *Recorder) Strings() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// FakeActuator is an Actuator that does not touch pins. When OnMove is set
// it replaces the wait, so tests can advance a fake clock instead of sleeping.
type FakeActuator struct {
	Rec     *Recorder
	Max     time.Duration
	MoveErr error
	OnMove  func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	moving  bool
	stopped int
}

// Move records the call and waits via OnMove or a real timer.
func (f *FakeActuator) Move(ctx context.Context, dir Direction, d time.Duration) error {
	f.Rec.add("actuator", "move", fmt.Sprintf("%s %v", dir, d))
	if err := ValidateMove(d, f.MaxMove()); err != nil {
		return err
	}
	if f.MoveErr != nil {
		return f.MoveErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.moving = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.moving = false
		f.mu.Unlock()
	}()
	if f.OnMove != nil {
		return f.OnMove(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// Stop records the call.
func (f *FakeActuator) Stop() error {
	f.Rec.add("actuator", "stop", "")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

// MaxMove returns Max, or DefaultMaxMove when unset.
func (f *FakeActuator) MaxMove() time.Duration {
	if f.Max > 0 {
		return f.Max
	}
	return DefaultMaxMove
}

// Stops returns how many times Stop was called.
func (f *FakeActuator) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// FakeRelay is an in-memory relay.
type FakeRelay struct {
	Rec    *Recorder
	ID     string
	SetErr error

	mu     sync.Mutex
	on     bool
	writes int
}

// Name returns ID.
func (f *FakeRelay) Name() string { return f.ID }

// Set records the call. SetErr and a done ctx fail only switch-on requests,
// so a failed relay can still be forced off.
func (f *FakeRelay) Set(ctx context.Context, on bool) error {
	f.Rec.add("relay:"+f.ID, "set", fmt.Sprint(on))
	if on && f.SetErr != nil {
		return f.SetErr
	}
	if on && ctx.Err() != nil {
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.on != on {
		f.writes++
	}
	f.on = on
	return nil
}

// On reports the current state.
func (f *FakeRelay) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Writes counts state changes.
func (f *FakeRelay) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// FakeLight is an in-memory light. Flashes complete immediately.
type FakeLight struct {
	Rec      *Recorder
	Err      error
	PingErr  error
	Interval time.Duration

	mu    sync.Mutex
	color Color
	on    bool
}

// SetColor records the colour.
func (f *FakeLight) SetColor(_ context.Context, c Color) error {
	f.Rec.add("light", "color", c.String())
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.color, f.on = c, true
	return nil
}

// Flash records the call and reports Err.
func (f *FakeLight) Flash(_ context.Context, count int) <-chan error {
	f.Rec.add("light", "flash", fmt.Sprint(count))
	ch := make(chan error, 1)
	ch <- f.Err
	close(ch)
	return ch
}

// On records the call.
func (f *FakeLight) On(context.Context) error {
	f.Rec.add("light", "on", "")
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = true
	return nil
}

// Off records the call.
func (f *FakeLight) Off(context.Context) error {
	f.Rec.add("light", "off", "")
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	return nil
}

// Ping reports PingErr.
func (f *FakeLight) Ping(context.Context) error { return f.PingErr }

// FlashInterval returns Interval.
func (f *FakeLight) FlashInterval() time.Duration { return f.Interval }

// State returns the current colour and power.
func (f *FakeLight) State() (Color, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.color, f.on
}

// FakeAudio records plays; every playback finishes immediately.
type FakeAudio struct {
	Rec      *Recorder
	PlayErr  error
	CheckErr error
}

// Play records the file.
func (f *FakeAudio) Play(_ context.Context, file string) (*Playback, error) {
	f.Rec.add("audio", "play", file)
	if f.PlayErr != nil {
		return nil, f.PlayErr
	}
	return FinishedPlayback(file, nil), nil
}

// StopAll records the call.
func (f *FakeAudio) StopAll() error {
	f.Rec.add("audio", "stopall", "")
	return nil
}

// Check reports CheckErr.
func (f *FakeAudio) Check(context.Context) error { return f.CheckErr }
