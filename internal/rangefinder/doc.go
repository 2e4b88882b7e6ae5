// Package rangefinder reads distances from proximity sensors.
//
// A Sensor performs exactly one measurement per Sample call and never
// retries; retry and smoothing policy belongs to the detector. Every reading
// is checked against the configured [minimum_valid, maximum_valid] bounds and
// anything outside them comes back as an invalid Sample, never a number.
//
// Implementations:
//   - Ultrasonic: HC-SR04 style trigger/echo pair on GPIO
//   - Serial: UART sensors emitting A02YYUW frames (0xFF, H, L, SUM)
//   - Pair: several sensors, shortest valid reading wins
//   - Scripted: a fixed list of readings for tests and simulation
package rangefinder
