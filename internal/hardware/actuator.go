package hardware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/haunt-core/internal/infrastructure/pins"
	"periph.io/x/conn/v3/gpio"
)

// DefaultMaxMove caps a single motor move when no limit is configured.
const DefaultMaxMove = 30 * time.Second

// Direction is the motor direction.
type Direction int

const (
	Forward Direction = iota + 1
	Reverse
)

// String returns "forward" or "reverse".
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts forward/reverse (and the fwd/rev, up/down aliases).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "fwd", "up":
		return Forward, nil
	case "reverse", "rev", "backward", "down":
		return Reverse, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// Actuator is a reversible motor.
type Actuator interface {
	// Move energises one direction for d, then de-energises. It blocks.
	Move(ctx context.Context, dir Direction, d time.Duration) error
	// Stop de-energises both directions immediately.
	Stop() error
	// MaxMove is the longest single move accepted.
	MaxMove() time.Duration
}

// ValidateMove checks a requested duration against the actuator limit.
func ValidateMove(d, maxMove time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v must be positive", ErrInvalidDuration, d)
	}
	if d > maxMove {
		return fmt.Errorf("%w: %v exceeds maximum %v", ErrInvalidDuration, d, maxMove)
	}
	return nil
}

// Motor drives an H-bridge through two GPIO outputs.
type Motor struct {
	forward pins.Pin
	reverse pins.Pin
	maxMove time.Duration
	logger  Logger

	// moveMu serialises moves; mu guards the pins and the active stop channel.
	moveMu sync.Mutex
	mu     sync.Mutex
	stop   chan struct{}
}

// NewMotor configures both outputs low.
func NewMotor(forward, reverse pins.Pin, maxMove time.Duration) (*Motor, error) {
	if forward.Name() == reverse.Name() {
		return nil, fmt.Errorf("%w: forward and reverse both %s", ErrInvalidPins, forward.Name())
	}
	if maxMove <= 0 {
		maxMove = DefaultMaxMove
	}
	m := &Motor{forward: forward, reverse: reverse, maxMove: maxMove, logger: noopLogger{}}
	if err := m.lowerBoth(); err != nil {
		return nil, fmt.Errorf("initialising motor: %w", err)
	}
	return m, nil
}

// SetLogger sets the logger for the motor.
func (m *Motor) SetLogger(logger Logger) {
	m.logger = logger
}

// MaxMove returns the configured limit.
func (m *Motor) MaxMove() time.Duration {
	return m.maxMove
}

// Move runs the motor in dir for d. Stop or ctx cancellation ends it early;
// the outputs are always lowered before Move returns. A ctx that is already
// done energises nothing.
func (m *Motor) Move(ctx context.Context, dir Direction, d time.Duration) error {
	if err := ValidateMove(d, m.maxMove); err != nil {
		return err
	}
	active, opposite, err := m.pinsFor(dir)
	if err != nil {
		return err
	}

	m.moveMu.Lock()
	defer m.moveMu.Unlock()

	m.mu.Lock()
	// Checked under mu: a Stop that already ran must not be followed by a move.
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return err
	}
	// Opposite side first so both are never high together.
	if err := opposite.Out(gpio.Low); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("lowering %s: %w", opposite.Name(), err)
	}
	if err := active.Out(gpio.High); err != nil {
		_ = m.lowerBothLocked() //nolint:errcheck // reporting the first failure
		m.mu.Unlock()
		return fmt.Errorf("raising %s: %w", active.Name(), err)
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	m.logger.Debug("motor moving", "direction", dir.String(), "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	var result error
	select {
	case <-timer.C:
	case <-ctx.Done():
		result = ctx.Err()
	case <-stop:
		result = ErrMoveInterrupted
	}

	m.mu.Lock()
	if m.stop == stop {
		m.stop = nil
	}
	lowerErr := m.lowerBothLocked()
	m.mu.Unlock()

	if lowerErr != nil {
		return errors.Join(result, fmt.Errorf("stopping motor: %w", lowerErr))
	}
	return result
}

// Stop lowers both outputs and interrupts any move in progress.
func (m *Motor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	return m.lowerBothLocked()
}

// Close stops the motor and releases both pins.
func (m *Motor) Close() error {
	err := m.Stop()
	return errors.Join(err, m.forward.Halt(), m.reverse.Halt())
}

func (m *Motor) pinsFor(dir Direction) (active, opposite pins.Pin, err error) {
	switch dir {
	case Forward:
		return m.forward, m.reverse, nil
	case Reverse:
		return m.reverse, m.forward, nil
	default:
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDirection, dir)
	}
}

func (m *Motor) lowerBoth() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lowerBothLocked()
}

// lowerBothLocked attempts both pins even if the first write fails.
func (m *Motor) lowerBothLocked() error {
	return errors.Join(m.forward.Out(gpio.Low), m.reverse.Out(gpio.Low))
}
