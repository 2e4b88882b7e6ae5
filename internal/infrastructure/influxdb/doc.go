// Package influxdb provides InfluxDB connectivity for Haunt Core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, the controller's measurements and health monitoring.
//
// # Measurements
//
//   - haunt_sample: every range reading (sensor tag; distance_cm, valid)
//   - haunt_detection: detector state changes (state tag; mean_cm, fault)
//   - haunt_run: finished sequence runs (sequence, status tags; counters)
//
// Every point carries a "site" default tag.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSample("front", 42.5, true, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// SetOnError callback wrapped in ErrWriteFailed. Connection and health check
// errors are returned directly.
package influxdb
