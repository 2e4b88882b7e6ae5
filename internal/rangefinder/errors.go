package rangefinder

import "errors"

var (
	// ErrEchoTimeout is returned when no echo (or no serial frame) arrives in time.
	ErrEchoTimeout = errors.New("rangefinder: echo timeout")

	// ErrOutOfRange is returned when a measured distance falls outside the valid bounds.
	ErrOutOfRange = errors.New("rangefinder: distance out of range")

	// ErrBadFrame is returned when a serial frame fails its checksum.
	ErrBadFrame = errors.New("rangefinder: bad serial frame")

	// ErrSensorClosed is returned by Sample after Close.
	ErrSensorClosed = errors.New("rangefinder: sensor closed")

	// ErrUnknownSensorType is returned for sensor types the factory cannot build.
	ErrUnknownSensorType = errors.New("rangefinder: unknown sensor type")
)
