package rangefinder

import (
	"errors"
	"fmt"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/pins"
)

// BoundsFrom extracts the valid distance range from detection settings.
func BoundsFrom(d config.DetectionConfig) Bounds {
	return Bounds{Min: d.MinimumValid, Max: d.MaximumValid}
}

// Open builds one sensor from its configuration.
func Open(sc config.SensorConfig, b Bounds, provider pins.Provider) (Sensor, error) {
	switch sc.Type {
	case config.SensorUltrasonic:
		trigger, err := provider.Pin(sc.TriggerPin)
		if err != nil {
			return nil, fmt.Errorf("sensor %s trigger: %w", sc.Name, err)
		}
		echo, err := provider.Pin(sc.EchoPin)
		if err != nil {
			return nil, fmt.Errorf("sensor %s echo: %w", sc.Name, err)
		}
		return NewUltrasonic(UltrasonicConfig{
			Name:        sc.Name,
			Trigger:     trigger,
			Echo:        echo,
			EchoTimeout: sc.EchoTimeout.Std(),
			Bounds:      b,
		})
	case config.SensorSerial:
		return OpenSerial(SerialConfig{
			Name:     sc.Name,
			Port:     sc.Port,
			BaudRate: sc.BaudRate,
			Bounds:   b,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSensorType, sc.Type)
	}
}

// OpenAll builds every configured sensor. More than one sensor is combined
// into a Pair. On error, sensors already opened are closed.
func OpenAll(sensors []config.SensorConfig, b Bounds, provider pins.Provider) (Sensor, error) {
	if len(sensors) == 0 {
		return nil, errors.New("rangefinder: no sensors configured")
	}
	opened := make([]Sensor, 0, len(sensors))
	for _, sc := range sensors {
		s, err := Open(sc, b, provider)
		if err != nil {
			for _, o := range opened {
				_ = o.Close() //nolint:errcheck // already failing
			}
			return nil, err
		}
		opened = append(opened, s)
	}
	if len(opened) == 1 {
		return opened[0], nil
	}
	return NewPair("", opened...), nil
}
