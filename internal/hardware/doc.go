// Package hardware owns the physical devices the sequence engine drives.
//
// Four capability contracts hide the wiring details:
//
//   - Actuator: a reversible motor on an H-bridge. Move blocks for the
//     requested duration; forward and reverse are never energised together.
//   - Relay: a named on/off channel. Set is idempotent.
//   - Light: a colour light reached over the network (Govee LAN or MQTT).
//     Flash runs in the background and reports on a channel.
//   - Audio: an external player process. Play returns immediately.
//
// The Registry is built once at startup. SelfTest exercises every device
// (a stop pulse for the motor, an off pulse per relay, a status probe for the
// light, a player lookup for audio). A device that fails is swapped for a
// disabled implementation that returns ErrDeviceUnavailable on every call,
// so one broken light never stops the motor and relays from working.
//
// SafeState de-energises everything that can hold power: it stops the
// actuator, switches every relay off and stops all playback. It is safe to
// call concurrently with an in-flight Move.
package hardware
