package rangefinder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/haunt-core/internal/infrastructure/pins"
	"periph.io/x/conn/v3/gpio"
)

// Ultrasonic timing defaults.
const (
	DefaultEchoTimeout = 40 * time.Millisecond
	triggerPulse       = 10 * time.Microsecond
	settleTime         = 2 * time.Microsecond
)

// UltrasonicConfig describes a trigger/echo sensor.
type UltrasonicConfig struct {
	Name        string
	Trigger     pins.Pin
	Echo        pins.Pin
	EchoTimeout time.Duration
	Bounds      Bounds
}

// Ultrasonic measures distance with a trigger pulse and echo width.
type Ultrasonic struct {
	name        string
	trigger     pins.Pin
	echo        pins.Pin
	echoTimeout time.Duration
	bounds      Bounds

	now   func() time.Time
	sleep func(time.Duration)

	mu     sync.Mutex
	closed bool
}

// NewUltrasonic configures the pins and returns a ready sensor.
// The trigger line is driven low and the echo line set as a pulled-down input.
func NewUltrasonic(cfg UltrasonicConfig) (*Ultrasonic, error) {
	if cfg.EchoTimeout <= 0 {
		cfg.EchoTimeout = DefaultEchoTimeout
	}
	if err := cfg.Trigger.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("sensor %s: configuring trigger %s: %w", cfg.Name, cfg.Trigger.Name(), err)
	}
	if err := cfg.Echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("sensor %s: configuring echo %s: %w", cfg.Name, cfg.Echo.Name(), err)
	}
	return &Ultrasonic{
		name:        cfg.Name,
		trigger:     cfg.Trigger,
		echo:        cfg.Echo,
		echoTimeout: cfg.EchoTimeout,
		bounds:      cfg.Bounds,
		now:         time.Now,
		sleep:       time.Sleep,
	}, nil
}

// Name returns the configured sensor name.
func (u *Ultrasonic) Name() string {
	return u.name
}

// Sample fires one trigger pulse and times the echo.
func (u *Ultrasonic) Sample(ctx context.Context) Sample {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return Invalid(u.name, ErrSensorClosed, u.now())
	}
	if err := ctx.Err(); err != nil {
		return Invalid(u.name, err, u.now())
	}

	if err := u.pulse(); err != nil {
		return Invalid(u.name, err, u.now())
	}

	start, ok := u.waitFor(gpio.High)
	if !ok {
		return Invalid(u.name, fmt.Errorf("%w: no rising edge", ErrEchoTimeout), u.now())
	}
	end, ok := u.waitFor(gpio.Low)
	if !ok {
		return Invalid(u.name, fmt.Errorf("%w: echo held high", ErrEchoTimeout), u.now())
	}

	s := Validate(EchoDistance(end.Sub(start)), u.bounds)
	s.Timestamp = end
	s.Sensor = u.name
	return s
}

func (u *Ultrasonic) pulse() error {
	if err := u.trigger.Out(gpio.Low); err != nil {
		return fmt.Errorf("trigger low: %w", err)
	}
	u.sleep(settleTime)
	if err := u.trigger.Out(gpio.High); err != nil {
		return fmt.Errorf("trigger high: %w", err)
	}
	u.sleep(triggerPulse)
	if err := u.trigger.Out(gpio.Low); err != nil {
		return fmt.Errorf("trigger low: %w", err)
	}
	return nil
}

// waitFor blocks until the echo line reads level or the echo timeout passes.
func (u *Ultrasonic) waitFor(level gpio.Level) (time.Time, bool) {
	deadline := u.now().Add(u.echoTimeout)
	for {
		if u.echo.Read() == level {
			return u.now(), true
		}
		remaining := deadline.Sub(u.now())
		if remaining <= 0 {
			return time.Time{}, false
		}
		u.echo.WaitForEdge(remaining)
	}
}

// Close leaves the trigger low and releases both pins.
func (u *Ultrasonic) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	_ = u.trigger.Out(gpio.Low) //nolint:errcheck // best effort before release
	if err := u.trigger.Halt(); err != nil {
		return fmt.Errorf("sensor %s: releasing trigger: %w", u.name, err)
	}
	if err := u.echo.Halt(); err != nil {
		return fmt.Errorf("sensor %s: releasing echo: %w", u.name, err)
	}
	return nil
}
