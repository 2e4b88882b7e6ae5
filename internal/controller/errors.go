package controller

import "errors"

var (
	// ErrBusy is returned when a trigger is refused because a sequence is
	// running or the controller is cooling down.
	ErrBusy = errors.New("controller: busy")

	// ErrNotRunning is returned by Trigger before Run has started.
	ErrNotRunning = errors.New("controller: not running")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("controller: already running")

	// ErrEmergencyStopped is returned by Run after an emergency stop, and by
	// Trigger once the controller has been stopped.
	ErrEmergencyStopped = errors.New("controller: emergency stopped")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("controller: missing dependency")
)
