package pins

import "errors"

var (
	// ErrInvalidPin is returned for BCM numbers outside the header range.
	ErrInvalidPin = errors.New("pins: invalid BCM pin")

	// ErrPinNotFound is returned when the host has no pin with that number.
	ErrPinNotFound = errors.New("pins: pin not found")

	// ErrHostInit is returned when the periph host drivers fail to load.
	ErrHostInit = errors.New("pins: host initialisation failed")
)
