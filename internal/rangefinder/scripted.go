package rangefinder

import (
	"context"
	"math"
	"sync"
	"time"
)

// Scripted replays a fixed list of distances. NaN entries stand for a
// missing echo; other values go through the normal bounds check.
type Scripted struct {
	name     string
	bounds   Bounds
	readings []float64
	loop     bool
	now      func() time.Time

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewScripted returns a sensor that yields readings in order. When loop is
// false, samples after the last reading report ErrEchoTimeout.
func NewScripted(name string, b Bounds, loop bool, readings ...float64) *Scripted {
	return &Scripted{
		name:     name,
		bounds:   b,
		readings: readings,
		loop:     loop,
		now:      time.Now,
	}
}

// Name returns the sensor name.
func (s *Scripted) Name() string {
	return s.name
}

// Sample returns the next scripted reading.
func (s *Scripted) Sample(ctx context.Context) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.closed {
		return Invalid(s.name, ErrSensorClosed, now)
	}
	if err := ctx.Err(); err != nil {
		return Invalid(s.name, err, now)
	}
	if s.pos >= len(s.readings) {
		if !s.loop || len(s.readings) == 0 {
			return Invalid(s.name, ErrEchoTimeout, now)
		}
		s.pos = 0
	}

	d := s.readings[s.pos]
	s.pos++
	if math.IsNaN(d) {
		return Invalid(s.name, ErrEchoTimeout, now)
	}
	sample := Validate(d, s.bounds)
	sample.Timestamp = now
	sample.Sensor = s.name
	return sample
}

// Remaining reports how many readings are left before the script ends or wraps.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings) - s.pos
}

// Close stops the script.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// VisitorScript is a loopable profile of someone walking up to the prop,
// lingering, and leaving, with an occasional dropped echo.
func VisitorScript() []float64 {
	var r []float64
	for i := 0; i < 20; i++ {
		r = append(r, 250)
	}
	for d := 240.0; d >= 40; d -= 10 {
		r = append(r, d)
	}
	r = append(r, math.NaN(), 41, 42, 40, 39, 41, 40)
	for d := 60.0; d <= 250; d += 15 {
		r = append(r, d)
	}
	for i := 0; i < 60; i++ {
		r = append(r, 250)
	}
	return r
}
