package hardware

import "errors"

var (
	// ErrDeviceUnavailable is returned by devices that failed self-test or are not configured.
	ErrDeviceUnavailable = errors.New("hardware: device unavailable")

	// ErrNoUsableHardware is returned when no configured device passed self-test.
	ErrNoUsableHardware = errors.New("hardware: no usable hardware")

	// ErrUnknownRelay is returned when a relay name is not configured.
	ErrUnknownRelay = errors.New("hardware: unknown relay")

	// ErrInvalidDuration is returned for motor moves that are not positive or exceed the maximum.
	ErrInvalidDuration = errors.New("hardware: invalid duration")

	// ErrInvalidDirection is returned for motor directions other than forward and reverse.
	ErrInvalidDirection = errors.New("hardware: invalid direction")

	// ErrInvalidPins is returned when a pin assignment is out of range or conflicting.
	ErrInvalidPins = errors.New("hardware: invalid pin assignment")

	// ErrMoveInterrupted is returned by Move when Stop ends the move early.
	ErrMoveInterrupted = errors.New("hardware: move interrupted")

	// ErrLightUnreachable is returned when the light does not answer.
	ErrLightUnreachable = errors.New("hardware: light unreachable")

	// ErrUnknownColor is returned for colour names with no preset.
	ErrUnknownColor = errors.New("hardware: unknown colour")

	// ErrAudioFileMissing is returned when a sound file does not exist.
	ErrAudioFileMissing = errors.New("hardware: audio file missing")

	// ErrPlayerMissing is returned when the audio player binary cannot be found.
	ErrPlayerMissing = errors.New("hardware: audio player missing")
)
