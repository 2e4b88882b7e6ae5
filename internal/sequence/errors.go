package sequence

import "errors"

// Domain errors for the sequence package.
var (
	// ErrInvalidAction is reported for an unknown action type or malformed parameters.
	ErrInvalidAction = errors.New("sequence: invalid action")

	// ErrUnknownDevice is reported when an action names a device that is not configured.
	ErrUnknownDevice = errors.New("sequence: unknown device")

	// ErrAborted is returned by Outcome.Err when a run was cut short.
	ErrAborted = errors.New("sequence: aborted")
)
