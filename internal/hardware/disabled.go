package hardware

import (
	"context"
	"fmt"
	"time"
)

// Disabled devices stand in for hardware that is not configured or failed
// self-test. Every action fails fast with ErrDeviceUnavailable; Stop and
// StopAll succeed because there is nothing to de-energise.

type disabledActuator struct{ reason string }

func (d disabledActuator) Move(context.Context, Direction, time.Duration) error {
	return fmt.Errorf("%w: actuator: %s", ErrDeviceUnavailable, d.reason)
}
func (disabledActuator) Stop() error { return nil }
func (disabledActuator) MaxMove() time.Duration { return 0 }

type disabledRelay struct {
	name   string
	reason string
}

func (d disabledRelay) Name() string { return d.name }
func (d disabledRelay) Set(context.Context, bool) error {
	return fmt.Errorf("%w: relay %s: %s", ErrDeviceUnavailable, d.name, d.reason)
}
func (disabledRelay) On() bool { return false }

type disabledLight struct{ reason string }

func (d disabledLight) err() error {
	return fmt.Errorf("%w: light: %s", ErrDeviceUnavailable, d.reason)
}
func (d disabledLight) SetColor(context.Context, Color) error { return d.err() }
func (d disabledLight) Flash(context.Context, int) <-chan error {
	ch := make(chan error, 1)
	ch <- d.err()
	close(ch)
	return ch
}
func (d disabledLight) On(context.Context) error { return d.err() }
func (d disabledLight) Off(context.Context) error { return d.err() }
func (d disabledLight) Ping(context.Context) error { return d.err() }
func (disabledLight) FlashInterval() time.Duration { return 0 }

type disabledAudio struct{ reason string }

func (d disabledAudio) Play(context.Context, string) (*Playback, error) {
	return nil, fmt.Errorf("%w: audio: %s", ErrDeviceUnavailable, d.reason)
}
func (disabledAudio) StopAll() error { return nil }
func (d disabledAudio) Check(context.Context) error {
	return fmt.Errorf("%w: audio: %s", ErrDeviceUnavailable, d.reason)
}
