package rangefinder

import (
	"context"
	"errors"
	"strings"
)

// Pair samples several sensors in turn and reports the nearest valid
// reading. Mounting two sensors at different angles covers a wider doorway.
type Pair struct {
	name    string
	sensors []Sensor
}

// NewPair combines sensors. With no name, the member names are joined.
func NewPair(name string, sensors ...Sensor) *Pair {
	if name == "" {
		names := make([]string, len(sensors))
		for i, s := range sensors {
			names[i] = s.Name()
		}
		name = strings.Join(names, "+")
	}
	return &Pair{name: name, sensors: sensors}
}

// Name returns the combined name.
func (p *Pair) Name() string {
	return p.name
}

// Sample returns the shortest valid distance, or the first member's invalid
// sample when none are valid.
func (p *Pair) Sample(ctx context.Context) Sample {
	var best, first Sample
	found := false
	for i, s := range p.sensors {
		sample := s.Sample(ctx)
		if i == 0 {
			first = sample
		}
		if !sample.Valid {
			continue
		}
		if !found || sample.DistanceCM < best.DistanceCM {
			best = sample
			found = true
		}
	}
	if !found {
		return first
	}
	return best
}

// Close closes every member sensor.
func (p *Pair) Close() error {
	var errs []error
	for _, s := range p.sensors {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
