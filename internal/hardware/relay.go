package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/haunt-core/internal/infrastructure/pins"
	"periph.io/x/conn/v3/gpio"
)

// Relay is a named on/off channel.
type Relay interface {
	Name() string
	// Set switches the channel. Setting the current state does nothing.
	// Switching on is refused once ctx is done; switching off never is.
	Set(ctx context.Context, on bool) error
	On() bool
}

// GPIORelay switches a relay module input.
type GPIORelay struct {
	name      string
	pin       pins.Pin
	activeLow bool

	mu    sync.Mutex
	on    bool
	known bool
}

// NewGPIORelay configures the pin and switches the relay off.
func NewGPIORelay(name string, pin pins.Pin, activeLow bool) (*GPIORelay, error) {
	r := &GPIORelay{name: name, pin: pin, activeLow: activeLow}
	if err := r.Set(context.Background(), false); err != nil {
		return nil, fmt.Errorf("initialising relay %s: %w", name, err)
	}
	return r, nil
}

// Name returns the relay name.
func (r *GPIORelay) Name() string {
	return r.name
}

// Set drives the pin only when the state changes. After a failed write the
// state is unknown and the next Set always writes.
func (r *GPIORelay) Set(ctx context.Context, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if on {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("relay %s: %w", r.name, err)
		}
	}

	if r.known && r.on == on {
		return nil
	}
	level := gpio.Level(on != r.activeLow)
	if err := r.pin.Out(level); err != nil {
		r.known = false
		return fmt.Errorf("relay %s: %w", r.name, err)
	}
	r.on = on
	r.known = true
	return nil
}

// On reports the last successfully written state.
func (r *GPIORelay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on && r.known
}

// Close switches the relay off and releases the pin.
func (r *GPIORelay) Close() error {
	err := r.Set(context.Background(), false)
	if herr := r.pin.Halt(); err == nil {
		err = herr
	}
	return err
}
