package detector

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/rangefinder"
)

// State is the detection state.
type State int

const (
	Idle State = iota
	Warning
	Triggered
)

var stateNames = [...]string{"idle", "warning", "triggered"}

// String returns the lowercase state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the thresholds (centimetres) and validation parameters.
type Config struct {
	Warning             float64
	Trigger             float64
	ConsecutiveReadings int
	Tolerance           float64
	MaxFailedReadings   int
	RequireWarning      bool
}

// ConfigFrom extracts detector settings from the detection config section.
func ConfigFrom(d config.DetectionConfig) Config {
	return Config{
		Warning:             d.Warning,
		Trigger:             d.Trigger,
		ConsecutiveReadings: d.ConsecutiveReadings,
		Tolerance:           d.ReadingTolerance,
		MaxFailedReadings:   d.MaxFailedReadings,
		RequireWarning:      d.RequireWarning,
	}
}

// Status is the detector's view after one observation.
type Status struct {
	State    State     `json:"state"`
	Previous State     `json:"previous"`
	Changed  bool      `json:"changed"`
	Distance float64   `json:"distance_cm,omitempty"`
	Valid    bool      `json:"valid"`
	Mean     float64   `json:"mean_cm,omitempty"`
	Window   []float64 `json:"window"`
	At       time.Time `json:"at"`

	// Fault is true while the sensor is in a standing fault; Err wraps
	// ErrSensorFault. FaultRaised and FaultCleared mark the transitions.
	Fault        bool  `json:"fault"`
	FaultRaised  bool  `json:"-"`
	FaultCleared bool  `json:"-"`
	Failures     int   `json:"consecutive_failures"`
	Err          error `json:"-"`
}

// Detector is the detection state machine. Safe for concurrent use.
type Detector struct {
	cfg Config

	mu       sync.Mutex
	state    State
	window   []float64
	failures int
	fault    bool
	last     Status
}

// New creates a detector in the Idle state. A ConsecutiveReadings below one
// is treated as one.
func New(cfg Config) *Detector {
	if cfg.ConsecutiveReadings < 1 {
		cfg.ConsecutiveReadings = 1
	}
	if cfg.MaxFailedReadings < 1 {
		cfg.MaxFailedReadings = 1
	}
	return &Detector{
		cfg:    cfg,
		window: make([]float64, 0, cfg.ConsecutiveReadings),
	}
}

// Observe feeds one sample and returns the resulting status.
func (d *Detector) Observe(s rangefinder.Sample) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.state
	st := Status{Previous: prev, At: s.Timestamp, Valid: s.Valid}

	if !s.Valid {
		d.window = d.window[:0]
		d.failures++
		if d.failures >= d.cfg.MaxFailedReadings {
			if !d.fault {
				st.FaultRaised = true
			}
			d.fault = true
		}
	} else {
		if d.fault {
			st.FaultCleared = true
		}
		d.failures = 0
		d.fault = false
		d.push(s.DistanceCM)
		st.Distance = s.DistanceCM
		d.state = d.next(s.DistanceCM)
	}

	st.State = d.state
	st.Changed = d.state != prev
	st.Window = append([]float64(nil), d.window...)
	if len(d.window) > 0 {
		st.Mean = stat.Mean(d.window, nil)
	}
	st.Failures = d.failures
	st.Fault = d.fault
	if d.fault {
		st.Err = fmt.Errorf("%w: %d consecutive invalid readings: %v", ErrSensorFault, d.failures, s.Err)
	}

	d.last = st
	return st
}

// push appends a distance, keeping only the newest N.
func (d *Detector) push(v float64) {
	if len(d.window) == d.cfg.ConsecutiveReadings {
		copy(d.window, d.window[1:])
		d.window = d.window[:len(d.window)-1]
	}
	d.window = append(d.window, v)
}

// next computes the state after a valid sample. Caller holds d.mu.
func (d *Detector) next(latest float64) State {
	if d.state == Triggered {
		return Triggered
	}
	if latest > d.cfg.Warning {
		return Idle
	}
	if d.confirmed() && (!d.cfg.RequireWarning || d.state == Warning) {
		return Triggered
	}
	return Warning
}

// confirmed reports a full, consistent window whose mean is within the
// trigger distance.
func (d *Detector) confirmed() bool {
	if len(d.window) < d.cfg.ConsecutiveReadings {
		return false
	}
	if floats.Max(d.window)-floats.Min(d.window) > d.cfg.Tolerance {
		return false
	}
	return stat.Mean(d.window, nil) <= d.cfg.Trigger
}

// Reset returns the detector to Idle and clears the window. The failure
// count is kept; it describes the sensor, not the visitor.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Idle
	d.window = d.window[:0]
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Last returns the status produced by the most recent Observe.
func (d *Detector) Last() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.last
	st.Window = append([]float64(nil), d.last.Window...)
	return st
}

// Config returns the detector settings.
func (d *Detector) Config() Config {
	return d.cfg
}
