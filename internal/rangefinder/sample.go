package rangefinder

import (
	"context"
	"fmt"
	"time"
)

// SpeedOfSound in centimetres per second at roughly 20°C.
const SpeedOfSound = 34300.0

// Sample is one distance measurement. When Valid is false DistanceCM is zero
// and Err says why.
type Sample struct {
	DistanceCM float64   `json:"distance_cm"`
	Valid      bool      `json:"valid"`
	Err        error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	Sensor     string    `json:"sensor"`
}

// Bounds is the inclusive range of believable distances in centimetres.
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether d lies within the bounds.
func (b Bounds) Contains(d float64) bool {
	return d >= b.Min && d <= b.Max
}

// Sensor is a single-shot distance source.
//
// Sample must not block longer than the sensor's own timeout and is safe to
// call from one goroutine at a time; implementations serialise internally.
type Sensor interface {
	Sample(ctx context.Context) Sample
	Name() string
	Close() error
}

// Validate turns a raw distance into a Sample, marking it invalid when it
// falls outside b. The caller fills in Timestamp and Sensor.
func Validate(distance float64, b Bounds) Sample {
	if !b.Contains(distance) {
		return Sample{
			Err: fmt.Errorf("%w: %.1fcm not in [%.1f, %.1f]", ErrOutOfRange, distance, b.Min, b.Max),
		}
	}
	return Sample{DistanceCM: distance, Valid: true}
}

// Invalid builds an invalid sample for sensor at t.
func Invalid(sensor string, err error, t time.Time) Sample {
	return Sample{Err: err, Timestamp: t, Sensor: sensor}
}

// EchoDistance converts a round-trip echo time to centimetres.
func EchoDistance(elapsed time.Duration) float64 {
	return elapsed.Seconds() * SpeedOfSound / 2
}
