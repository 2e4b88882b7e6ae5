// Package controller runs the polling loop that ties the range sensor, the
// detector and the sequence engine together.
//
// Phases:
//
//	idle ──Triggered──▶ running ──outcome──▶ cooldown ──timer──▶ idle
//	  │                    │                     │
//	  └────────────────────┴── EmergencyStop ────┴──▶ stopped
//
// Run polls the sensor once per reading interval on its own goroutine. A
// trigger sequence runs on a second goroutine so sampling and telemetry
// continue while the prop moves. Starting a sequence is a compare-and-set
// from idle to running; every other caller (a second detection, the API,
// an MQTT command) gets ErrBusy.
//
// EmergencyStop cancels the current run, forces the hardware safe state and
// makes Run return ErrEmergencyStopped. Cancelling Run's context does the
// same but Run returns nil, which is how SIGINT and SIGTERM are handled.
package controller
