package sequence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/nerrad567/haunt-core/internal/hardware"
	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/pins"
)

// fakeClock advances only when told to; Sleep advances it immediately.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 31, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// blockingClock sleeps until the context ends.
type blockingClock struct {
	*fakeClock
	sleeping chan struct{}
}

func (c *blockingClock) Sleep(ctx context.Context, _ time.Duration) error {
	close(c.sleeping)
	<-ctx.Done()
	return ctx.Err()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []map[string]any
}

func (n *recordingNotifier) Broadcast(channel string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if channel == EventAction {
		n.events = append(n.events, payload.(map[string]any))
	}
}

type rig struct {
	rec    *hardware.Recorder
	clock  *fakeClock
	act    *hardware.FakeActuator
	smoke  *hardware.FakeRelay
	pump   *hardware.FakeRelay
	light  *hardware.FakeLight
	audio  *hardware.FakeAudio
	reg    *hardware.Registry
	engine *Engine
}

func newRig(t *testing.T, budget time.Duration) *rig {
	t.Helper()
	r := &rig{rec: &hardware.Recorder{}, clock: newFakeClock()}
	r.act = &hardware.FakeActuator{
		Rec: r.rec,
		Max: 5 * time.Second,
		OnMove: func(_ context.Context, d time.Duration) error {
			r.clock.Advance(d)
			return nil
		},
	}
	r.smoke = &hardware.FakeRelay{Rec: r.rec, ID: "smoke"}
	r.pump = &hardware.FakeRelay{Rec: r.rec, ID: "pump"}
	r.light = &hardware.FakeLight{Rec: r.rec, Interval: 300 * time.Millisecond}
	r.audio = &hardware.FakeAudio{Rec: r.rec}
	r.reg = hardware.NewRegistry(hardware.Devices{
		Actuator: r.act,
		Relays:   []hardware.Relay{r.smoke, r.pump},
		Light:    r.light,
		Audio:    r.audio,
	})
	r.engine = NewEngine(r.reg, budget, nil)
	r.engine.SetClock(r.clock)
	return r
}

func secs(f float64) config.Duration {
	return config.Duration(f * float64(time.Second))
}

func TestRun_AbortsAfterMotorWhenBudgetExceeded(t *testing.T) {
	r := newRig(t, time.Second)
	seq := Build("trigger", []config.ActionConfig{
		{Type: "motor", Direction: "forward", Duration: secs(2)},
		{Type: "relay", Device: "smoke", State: "on"},
		{Type: "sleep", Duration: secs(0.5)},
		{Type: "relay", Device: "smoke", State: "off"},
	})

	out := r.engine.Run(context.Background(), seq, r.engine.NewRun())

	assert.Equal(t, StatusAborted, out.Status)
	assert.Equal(t, ReasonMaxDuration, out.Reason)
	assert.Equal(t, 1, out.Executed)
	assert.Equal(t, 3, out.Skipped)
	assert.ErrorIs(t, out.Err(), ErrAborted)
	assert.False(t, r.smoke.On())
	assert.Equal(t, []string{
		"actuator.move(forward 2s)",
		"actuator.stop()",
		"relay:smoke.set(false)",
		"relay:pump.set(false)",
		"audio.stopall()",
	}, r.rec.Strings())
	assert.Equal(t, 2*time.Second, out.Duration)
}

func TestRun_UnknownActionSkipped(t *testing.T) {
	r := newRig(t, time.Minute)
	seq := Build("trigger", []config.ActionConfig{
		{Type: "relay", Device: "smoke", State: "on"},
		{Type: "light", Preset: "red"},
		{Type: "teleport"},
		{Type: "sleep", Duration: secs(0.1)},
		{Type: "relay", Device: "smoke", State: "off"},
	})

	out := r.engine.Run(context.Background(), seq, nil)

	assert.Equal(t, StatusPartial, out.Status)
	assert.Equal(t, 4, out.Executed)
	assert.Equal(t, 1, out.Skipped)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, 2, out.Failures[0].Index)
	assert.Equal(t, KindInvalid, out.Failures[0].Kind)
	assert.ErrorIs(t, out.Failures[0].Err, ErrInvalidAction)
	assert.NoError(t, out.Err())
	assert.Equal(t, []string{
		"relay:smoke.set(true)",
		"light.color(#ff0000)",
		"relay:smoke.set(false)",
	}, r.rec.Strings())
}

func TestRun_Completed(t *testing.T) {
	r := newRig(t, time.Minute)
	notifier := &recordingNotifier{}
	r.engine.SetNotifier(notifier)
	seq := Build("trigger", []config.ActionConfig{
		{Type: "motor", Direction: "forward", Duration: secs(2.5)},
		{Type: "relay", Device: "pump", State: "on"},
		{Type: "audio", File: "scream.wav"},
		{Type: "light", Command: "flash", Count: 3},
		{Type: "relay", Device: "pump", State: "off"},
		{Type: "motor", Direction: "reverse", Duration: secs(2.5)},
		{Type: "motor", Direction: "stop"},
	})

	out := r.engine.Run(context.Background(), seq, nil)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 7, out.Executed)
	assert.Empty(t, out.Failures)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "trigger", out.Sequence)
	assert.Equal(t, []string{
		"actuator.move(forward 2.5s)",
		"relay:pump.set(true)",
		"audio.play(scream.wav)",
		"light.flash(3)",
		"relay:pump.set(false)",
		"actuator.move(reverse 2.5s)",
		"actuator.stop()",
	}, r.rec.Strings())

	require.Len(t, notifier.events, 7)
	assert.Equal(t, out.RunID, notifier.events[0]["run_id"])
	assert.Equal(t, true, notifier.events[6]["ok"])
}

func TestRun_FailedMotorStopsActuator(t *testing.T) {
	r := newRig(t, time.Minute)
	seq := Sequence{Name: "trigger", Actions: []Action{
		MotorAction{Command: MotorForward, Duration: 10 * time.Second},
		RelayAction{Device: "smoke", On: true},
	}}

	out := r.engine.Run(context.Background(), seq, nil)

	assert.Equal(t, StatusPartial, out.Status)
	require.Len(t, out.Failures, 1)
	assert.ErrorIs(t, out.Failures[0].Err, hardware.ErrInvalidDuration)
	assert.Equal(t, 1, r.act.Stops())
	assert.True(t, r.smoke.On(), "sequence continues after the failure")
}

func TestRun_FailedRelayForcedOff(t *testing.T) {
	r := newRig(t, time.Minute)
	r.pump.SetErr = assert.AnError
	seq := Sequence{Name: "trigger", Actions: []Action{
		RelayAction{Device: "pump", On: true},
		RelayAction{Device: "ghost", On: true},
	}}

	out := r.engine.Run(context.Background(), seq, nil)

	require.Len(t, out.Failures, 2)
	assert.ErrorIs(t, out.Failures[0].Err, assert.AnError)
	assert.ErrorIs(t, out.Failures[1].Err, ErrUnknownDevice)
	assert.Equal(t, []string{
		"relay:pump.set(true)",
		"relay:pump.set(false)",
	}, r.rec.Strings())
}

func TestRun_UnavailableDeviceFailsFast(t *testing.T) {
	rec := &hardware.Recorder{}
	smoke := &hardware.FakeRelay{Rec: rec, ID: "smoke"}
	reg := hardware.NewRegistry(hardware.Devices{Relays: []hardware.Relay{smoke}})
	engine := NewEngine(reg, time.Minute, nil)
	engine.SetClock(newFakeClock())
	seq := Sequence{Name: "trigger", Actions: []Action{
		LightAction{Command: LightColor, Color: hardware.Color{R: 255}},
		AudioAction{File: "boo.wav"},
		RelayAction{Device: "smoke", On: true},
	}}

	out := engine.Run(context.Background(), seq, nil)

	assert.Equal(t, StatusPartial, out.Status)
	require.Len(t, out.Failures, 2)
	assert.ErrorIs(t, out.Failures[0].Err, hardware.ErrDeviceUnavailable)
	assert.ErrorIs(t, out.Failures[1].Err, hardware.ErrDeviceUnavailable)
	assert.True(t, smoke.On())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	r := newRig(t, time.Minute)
	rc := r.engine.NewRun()
	rc.Cancel()
	rc.Cancel()
	seq := Sequence{Name: "trigger", Actions: []Action{RelayAction{Device: "smoke", On: true}}}

	out := r.engine.Run(context.Background(), seq, rc)

	assert.Equal(t, StatusAborted, out.Status)
	assert.Equal(t, ReasonCancelled, out.Reason)
	assert.Equal(t, 1, out.Skipped)
	assert.False(t, r.smoke.On())
	assert.Contains(t, r.rec.Strings(), "actuator.stop()")
}

func TestRun_CancelWakesSleep(t *testing.T) {
	r := newRig(t, time.Minute)
	clock := &blockingClock{fakeClock: r.clock, sleeping: make(chan struct{})}
	r.engine.SetClock(clock)
	seq := Sequence{Name: "trigger", Actions: []Action{
		SleepAction{Duration: time.Hour},
		RelayAction{Device: "smoke", On: true},
	}}
	rc := r.engine.NewRun()

	done := make(chan Outcome, 1)
	go func() { done <- r.engine.Run(context.Background(), seq, rc) }()
	<-clock.sleeping
	rc.Cancel()

	select {
	case out := <-done:
		assert.Equal(t, StatusAborted, out.Status)
		assert.Equal(t, ReasonCancelled, out.Reason)
		assert.Equal(t, 1, out.Executed)
		assert.Equal(t, 1, out.Skipped)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}
	assert.False(t, r.smoke.On())
}

func TestRun_AsyncFlashAndAudioWait(t *testing.T) {
	r := newRig(t, time.Minute)
	r.audio.PlayErr = assert.AnError
	seq := Sequence{Name: "trigger", Actions: []Action{
		LightAction{Command: LightFlash, Count: 5, Async: true},
		AudioAction{File: "thunder.wav", Wait: true},
		LightAction{Command: LightOff},
	}}

	out := r.engine.Run(context.Background(), seq, nil)

	assert.Equal(t, StatusPartial, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, 1, out.Failures[0].Index)
	_, on := r.light.State()
	assert.False(t, on)
}

func TestRun_EmptySequence(t *testing.T) {
	r := newRig(t, time.Minute)

	out := r.engine.Run(context.Background(), Sequence{Name: "setup"}, nil)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Zero(t, out.Executed)
	assert.Empty(t, r.rec.Calls())
}

// estopDevices cancels the run and forces the safe state the first time the
// engine looks up a device, which is after the abort check has passed.
type estopDevices struct {
	*hardware.Registry
	rc   *RunContext
	once sync.Once
}

func (d *estopDevices) stop() {
	d.once.Do(func() {
		d.rc.Cancel()
		_ = d.Registry.SafeState() //nolint:errcheck // levels are asserted below
	})
}

func (d *estopDevices) Actuator() hardware.Actuator {
	d.stop()
	return d.Registry.Actuator()
}

func (d *estopDevices) Relay(name string) (hardware.Relay, error) {
	d.stop()
	return d.Registry.Relay(name)
}

func TestRun_EmergencyStopBeforeDeviceCall(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{name: "motor move", action: MotorAction{Command: MotorForward, Duration: 500 * time.Millisecond}},
		{name: "relay on", action: RelayAction{Device: "smoke", On: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := pins.NewSim()
			fwd, err := sim.Pin(17)
			require.NoError(t, err)
			rev, err := sim.Pin(27)
			require.NoError(t, err)
			smokePin, err := sim.Pin(22)
			require.NoError(t, err)

			motor, err := hardware.NewMotor(fwd, rev, 5*time.Second)
			require.NoError(t, err)
			smoke, err := hardware.NewGPIORelay("smoke", smokePin, false)
			require.NoError(t, err)

			var energised atomic.Bool
			sim.Watch(func(_ int, level gpio.Level) {
				if level == gpio.High {
					energised.Store(true)
				}
			})

			rc := NewRunContext(time.Now(), time.Minute)
			devices := &estopDevices{
				Registry: hardware.NewRegistry(hardware.Devices{Actuator: motor, Relays: []hardware.Relay{smoke}}),
				rc:       rc,
			}
			engine := NewEngine(devices, time.Minute, nil)

			start := time.Now()
			out := engine.Run(context.Background(), Sequence{Name: "trigger", Actions: []Action{tt.action}}, rc)

			assert.Equal(t, StatusAborted, out.Status)
			assert.Equal(t, ReasonCancelled, out.Reason)
			assert.Equal(t, 0, out.Executed)
			assert.Equal(t, 1, out.Skipped)
			assert.Empty(t, out.Failures)
			assert.Less(t, time.Since(start), 250*time.Millisecond)
			assert.False(t, energised.Load(), "a pin was raised after the safe state")
			assert.Equal(t, []gpio.Level{gpio.Low, gpio.Low, gpio.Low}, sim.Snapshot(17, 27, 22))
		})
	}
}

func TestRunContext_BindCancelledSynchronously(t *testing.T) {
	rc := NewRunContext(time.Now(), 0)
	ctx, cancel := rc.Bind(context.Background())
	defer cancel()
	require.NoError(t, ctx.Err())

	rc.Cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	late, lateCancel := rc.Bind(context.Background())
	defer lateCancel()
	assert.ErrorIs(t, late.Err(), context.Canceled)
}
