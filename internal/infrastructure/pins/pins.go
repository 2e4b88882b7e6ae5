package pins

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// BCM range exposed on the 40-pin header.
const (
	MinBCM = 0
	MaxBCM = 27
)

// Pin is the subset of gpio.PinIO the controller uses.
// Every periph gpio.PinIO satisfies it.
type Pin interface {
	Name() string
	Out(l gpio.Level) error
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
	Halt() error
}

// Provider hands out pins by BCM number.
type Provider interface {
	Pin(bcm int) (Pin, error)
}

// ValidBCM reports whether n is a usable header pin.
func ValidBCM(n int) bool {
	return n >= MinBCM && n <= MaxBCM
}

var (
	hostOnce sync.Once
	hostErr  error
)

// Host is a Provider backed by periph.io's GPIO registry.
type Host struct{}

// Open loads the periph host drivers. Safe to call more than once.
func Open() (*Host, error) {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = fmt.Errorf("%w: %v", ErrHostInit, err)
		}
	})
	if hostErr != nil {
		return nil, hostErr
	}
	return &Host{}, nil
}

// Pin looks up GPIO<bcm> in the periph registry.
func (h *Host) Pin(bcm int) (Pin, error) {
	if !ValidBCM(bcm) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPin, bcm)
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", bcm))
	if p == nil {
		return nil, fmt.Errorf("%w: GPIO%d", ErrPinNotFound, bcm)
	}
	return p, nil
}
