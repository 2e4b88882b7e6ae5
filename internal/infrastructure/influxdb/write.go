package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSample    = "haunt_sample"
	MeasurementDetection = "haunt_detection"
	MeasurementRun       = "haunt_run"
)

// WriteSample records one range reading. Invalid readings are written with
// valid=false and no distance so dropouts show up on dashboards.
//
// Parameters:
//   - sensor: sensor name (tag)
//   - distanceCM: measured distance, ignored when valid is false
//   - valid: whether the reading passed validation
//   - at: sample timestamp
func (c *Client) WriteSample(sensor string, distanceCM float64, valid bool, at time.Time) {
	fields := map[string]interface{}{"valid": valid}
	if valid {
		fields["distance_cm"] = distanceCM
	}
	c.writePoint(MeasurementSample, map[string]string{"sensor": sensor}, fields, at)
}

// WriteDetection records a detector state change.
func (c *Client) WriteDetection(state string, meanCM float64, fault bool, at time.Time) {
	c.writePoint(MeasurementDetection,
		map[string]string{"state": state},
		map[string]interface{}{
			"mean_cm": meanCM,
			"fault":   fault,
		},
		at,
	)
}

// WriteRun records a finished sequence run.
//
// Parameters:
//   - sequence: sequence name (tag)
//   - status: completed, partial or aborted (tag)
//   - runID: run identifier (field, to keep tag cardinality low)
//   - executed, failed, skipped: action counters
//   - duration: run length
//   - at: run start time
func (c *Client) WriteRun(sequence, status, runID string, executed, failed, skipped int, duration time.Duration, at time.Time) {
	c.writePoint(MeasurementRun,
		map[string]string{
			"sequence": sequence,
			"status":   status,
		},
		map[string]interface{}{
			"run_id":      runID,
			"executed":    executed,
			"failed":      failed,
			"skipped":     skipped,
			"duration_ms": duration.Milliseconds(),
		},
		at,
	)
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.writePoint(measurement, tags, fields, timestamp)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
