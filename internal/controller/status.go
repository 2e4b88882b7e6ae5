package controller

import (
	"fmt"

	"github.com/nerrad567/haunt-core/internal/detector"
	"github.com/nerrad567/haunt-core/internal/sequence"
)

// Phase is the controller's position in the trigger cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCooldown
	PhaseStopped
)

var phaseNames = [...]string{"idle", "running", "cooldown", "stopped"}

// String returns the lowercase phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Status is a point-in-time snapshot for the API and the MQTT state topic.
type Status struct {
	Phase      Phase             `json:"phase"`
	Detection  detector.Status   `json:"detection"`
	CurrentRun string            `json:"current_run,omitempty"`
	LastRun    *sequence.Outcome `json:"last_run,omitempty"`
	Stopped    bool              `json:"stopped"`
	StopReason string            `json:"stop_reason,omitempty"`
}

// Status returns the current snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Phase:      c.Phase(),
		Detection:  c.detector.Last(),
		Stopped:    c.stopped,
		StopReason: c.stopReason,
	}
	if c.current != nil {
		st.CurrentRun = c.current.ID
	}
	if c.lastRun != nil {
		last := *c.lastRun
		st.LastRun = &last
	}
	return st
}
