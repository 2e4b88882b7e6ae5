package pins

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Sim is an in-memory Provider. Pins are created on first use.
type Sim struct {
	mu    sync.Mutex
	pins  map[int]*SimPin
	watch func(bcm int, level gpio.Level)
}

// NewSim creates an empty simulated pin bank.
func NewSim() *Sim {
	return &Sim{pins: make(map[int]*SimPin)}
}

// Pin returns the simulated pin for bcm.
func (s *Sim) Pin(bcm int) (Pin, error) {
	if !ValidBCM(bcm) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPin, bcm)
	}
	return s.Get(bcm), nil
}

// Get returns the concrete simulated pin, creating it if needed.
func (s *Sim) Get(bcm int) *SimPin {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[bcm]
	if !ok {
		p = &SimPin{bank: s, bcm: bcm, level: gpio.Low}
		s.pins[bcm] = p
	}
	return p
}

// Watch registers fn to be called after every level write. fn runs while the
// bank lock is held so it observes a consistent snapshot via Level; it must
// not call Out.
func (s *Sim) Watch(fn func(bcm int, level gpio.Level)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watch = fn
}

// level reads without locking; callers hold s.mu.
func (s *Sim) level(bcm int) gpio.Level {
	if p, ok := s.pins[bcm]; ok {
		return p.level
	}
	return gpio.Low
}

// Snapshot returns the current level of each pin in bcms.
func (s *Sim) Snapshot(bcms ...int) []gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gpio.Level, len(bcms))
	for i, n := range bcms {
		out[i] = s.level(n)
	}
	return out
}

// LevelLocked is for Watch callbacks, which already run under the bank lock.
func (s *Sim) LevelLocked(bcm int) gpio.Level {
	return s.level(bcm)
}

// SimPin is a simulated GPIO line.
type SimPin struct {
	bank   *Sim
	bcm    int
	level  gpio.Level
	writes int
	halted bool
	input  bool
	// FailOut makes Out return this error without changing the level.
	FailOut error
}

// Name returns the periph-style pin name.
func (p *SimPin) Name() string {
	return fmt.Sprintf("GPIO%d", p.bcm)
}

// Out drives the pin.
func (p *SimPin) Out(l gpio.Level) error {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	if p.FailOut != nil {
		return p.FailOut
	}
	p.input = false
	p.level = l
	p.writes++
	if p.bank.watch != nil {
		p.bank.watch(p.bcm, l)
	}
	return nil
}

// In configures the pin as an input.
func (p *SimPin) In(gpio.Pull, gpio.Edge) error {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	p.input = true
	return nil
}

// Read returns the current level.
func (p *SimPin) Read() gpio.Level {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	return p.level
}

// WaitForEdge never sees an edge; it waits out the timeout.
func (p *SimPin) WaitForEdge(timeout time.Duration) bool {
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return false
}

// Halt marks the pin released.
func (p *SimPin) Halt() error {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	p.halted = true
	return nil
}

// Level returns the current level.
func (p *SimPin) Level() gpio.Level {
	return p.Read()
}

// Writes returns how many times Out succeeded.
func (p *SimPin) Writes() int {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	return p.writes
}

// Halted reports whether Halt was called.
func (p *SimPin) Halted() bool {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	return p.halted
}
