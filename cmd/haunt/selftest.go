package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/haunt-core/internal/hardware"
	"github.com/nerrad567/haunt-core/internal/rangefinder"
)

// Sensor check parameters for the selftest command.
const (
	selfTestReadings = 10
	selfTestMinValid = 0.6
)

// errSensorCheck is returned when too few sensor readings are valid.
var errSensorCheck = errors.New("sensor check failed")

// selftest runs the hardware self-test and a sensor burst, printing a
// report to out. MQTT and the API are not started; an mqtt light is
// reported unavailable.
func selftest(ctx context.Context, opts options, out io.Writer) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}

	registry, hwErr := openHardware(ctx, cfg, opts, nil, log)
	if registry != nil {
		defer registry.Close() //nolint:errcheck // best-effort release on exit
		printDevices(out, registry.Status())
	} else if hwErr != nil {
		fmt.Fprintf(out, "hardware: %v\n", hwErr)
	}

	sensor, err := openSensor(cfg, opts)
	if err != nil {
		return errors.Join(hwErr, fmt.Errorf("opening sensor: %w", err))
	}
	defer sensor.Close() //nolint:errcheck // best-effort release on exit

	valid, err := checkSensor(ctx, sensor, selfTestReadings, cfg.Detection.ReadingInterval.Std(), out)
	fmt.Fprintf(out, "sensor %s: %d/%d valid readings\n", sensor.Name(), valid, selfTestReadings)

	return errors.Join(hwErr, err)
}

// checkSensor takes n readings spaced by interval and fails when fewer
// than selfTestMinValid of them are valid.
func checkSensor(ctx context.Context, sensor rangefinder.Sensor, n int, interval time.Duration, out io.Writer) (int, error) {
	valid := 0
	for i := 0; i < n; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return valid, ctx.Err()
			case <-time.After(interval):
			}
		}
		s := sensor.Sample(ctx)
		if s.Valid {
			valid++
			fmt.Fprintf(out, "  reading %2d: %.1f cm\n", i+1, s.DistanceCM)
			continue
		}
		fmt.Fprintf(out, "  reading %2d: invalid (%v)\n", i+1, s.Err)
	}

	if float64(valid) < selfTestMinValid*float64(n) {
		return valid, fmt.Errorf("%w: %d of %d readings valid, need %.0f%%", errSensorCheck, valid, n, selfTestMinValid*100)
	}
	return valid, nil
}

func printDevices(out io.Writer, devices []hardware.DeviceStatus) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tCATEGORY\tSTATUS\tERROR")
	for _, d := range devices {
		status := "ok"
		switch {
		case !d.Configured:
			status = "not configured"
		case !d.Available:
			status = "unavailable"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Category, status, d.Error)
	}
	tw.Flush() //nolint:errcheck // report output
}
