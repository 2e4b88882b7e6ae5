package rangefinder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeEcho models an HC-SR04 echo line relative to the end of the trigger pulse.
type fakeEcho struct {
	clock     *fakeClock
	fired     bool
	firedAt   time.Time
	riseAfter time.Duration
	width     time.Duration
	noEcho    bool
	stuckHigh bool
	halted    bool
}

func (e *fakeEcho) Name() string                  { return "GPIO24" }
func (e *fakeEcho) Out(gpio.Level) error          { return nil }
func (e *fakeEcho) In(gpio.Pull, gpio.Edge) error { return nil }
func (e *fakeEcho) Halt() error                   { e.halted = true; return nil }

func (e *fakeEcho) Read() gpio.Level {
	if !e.fired || e.noEcho {
		return gpio.Low
	}
	since := e.clock.t.Sub(e.firedAt)
	if since >= e.riseAfter && (e.stuckHigh || since < e.riseAfter+e.width) {
		return gpio.High
	}
	return gpio.Low
}

func (e *fakeEcho) WaitForEdge(timeout time.Duration) bool {
	next, ok := e.nextEdge()
	if ok && next <= timeout {
		e.clock.advance(next)
		return true
	}
	e.clock.advance(timeout)
	return false
}

func (e *fakeEcho) nextEdge() (time.Duration, bool) {
	if !e.fired || e.noEcho {
		return 0, false
	}
	since := e.clock.t.Sub(e.firedAt)
	switch {
	case since < e.riseAfter:
		return e.riseAfter - since, true
	case !e.stuckHigh && since < e.riseAfter+e.width:
		return e.riseAfter + e.width - since, true
	default:
		return 0, false
	}
}

type fakeTrigger struct {
	echo   *fakeEcho
	level  gpio.Level
	pulses int
	halted bool
}

func (p *fakeTrigger) Name() string                  { return "GPIO23" }
func (p *fakeTrigger) In(gpio.Pull, gpio.Edge) error { return nil }
func (p *fakeTrigger) Read() gpio.Level              { return p.level }
func (p *fakeTrigger) WaitForEdge(time.Duration) bool {
	return false
}
func (p *fakeTrigger) Halt() error { p.halted = true; return nil }

func (p *fakeTrigger) Out(l gpio.Level) error {
	if p.level == gpio.High && l == gpio.Low {
		p.pulses++
		p.echo.fired = true
		p.echo.firedAt = p.echo.clock.t
	}
	p.level = l
	return nil
}

func newTestUltrasonic(t *testing.T, echo *fakeEcho) (*Ultrasonic, *fakeTrigger) {
	t.Helper()
	trig := &fakeTrigger{echo: echo}
	u, err := NewUltrasonic(UltrasonicConfig{
		Name:    "front",
		Trigger: trig,
		Echo:    echo,
		Bounds:  testBounds,
	})
	require.NoError(t, err)
	u.now = echo.clock.now
	u.sleep = echo.clock.advance
	return u, trig
}

func TestUltrasonic_MeasuresEchoWidth(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	echo := &fakeEcho{clock: clock, riseAfter: 200 * time.Microsecond, width: 2 * time.Millisecond}
	u, trig := newTestUltrasonic(t, echo)

	s := u.Sample(context.Background())

	require.True(t, s.Valid, "err = %v", s.Err)
	assert.InDelta(t, 34.3, s.DistanceCM, 1e-6)
	assert.Equal(t, "front", s.Sensor)
	assert.Equal(t, 1, trig.pulses)
	assert.Equal(t, gpio.Low, trig.level, "trigger must rest low")
}

func TestUltrasonic_Failures(t *testing.T) {
	tests := []struct {
		name    string
		echo    fakeEcho
		wantErr error
	}{
		{
			name:    "no echo",
			echo:    fakeEcho{noEcho: true},
			wantErr: ErrEchoTimeout,
		},
		{
			name:    "echo stuck high",
			echo:    fakeEcho{riseAfter: 100 * time.Microsecond, stuckHigh: true},
			wantErr: ErrEchoTimeout,
		},
		{
			name:    "echo too long for the bounds",
			echo:    fakeEcho{riseAfter: 100 * time.Microsecond, width: 30 * time.Millisecond},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "echo too short for the bounds",
			echo:    fakeEcho{riseAfter: 100 * time.Microsecond, width: 50 * time.Microsecond},
			wantErr: ErrOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1000, 0)}
			echo := tt.echo
			echo.clock = clock
			u, _ := newTestUltrasonic(t, &echo)

			start := clock.t
			s := u.Sample(context.Background())

			assert.False(t, s.Valid)
			assert.Zero(t, s.DistanceCM)
			assert.ErrorIs(t, s.Err, tt.wantErr)
			assert.LessOrEqual(t, clock.t.Sub(start), 2*DefaultEchoTimeout+time.Millisecond,
				"sample must be bounded by the echo timeout")
		})
	}
}

func TestUltrasonic_Close(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	echo := &fakeEcho{clock: clock, riseAfter: time.Microsecond, width: time.Millisecond}
	u, trig := newTestUltrasonic(t, echo)

	require.NoError(t, u.Close())
	require.NoError(t, u.Close(), "second Close is a no-op")

	assert.True(t, trig.halted)
	assert.True(t, echo.halted)
	assert.ErrorIs(t, u.Sample(context.Background()).Err, ErrSensorClosed)
}
