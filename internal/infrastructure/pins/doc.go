// Package pins provides GPIO access for the range sensors and device drivers.
//
// Real hardware goes through periph.io: Open initialises the host drivers
// once and looks pins up by BCM number ("GPIO17"). Sim provides in-memory
// pins for simulation mode and tests; it records every write and can notify
// a watcher so safety properties can be checked at each transition.
//
// Only BCM pins 0-27 (the 40-pin header) are accepted.
package pins
