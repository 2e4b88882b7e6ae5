// Package detector turns a stream of range samples into a trigger decision.
//
// The detector keeps the last N valid samples (N = consecutive_readings).
// An invalid sample breaks the run and empties the window. The state moves:
//
//   - to Triggered when the window is full, every pair of samples is within
//     reading_tolerance (max - min <= tolerance) and the window mean is at
//     or below the trigger threshold;
//   - to Warning when the latest valid sample is at or below the warning
//     threshold but the trigger condition is not met yet;
//   - to Idle when a valid sample is above the warning threshold.
//
// With require_warning set, Triggered is only entered from Warning; a visitor
// who appears inside the trigger distance in one step first produces Warning.
//
// Triggered latches: later samples are still recorded but the state holds
// until Reset. Consecutive invalid samples are counted separately and after
// max_failed_readings the Status reports a standing sensor fault instead of
// silently falling back to Idle.
package detector
