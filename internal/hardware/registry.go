package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Category is a kind of device.
type Category string

const (
	CategoryActuator Category = "actuator"
	CategoryRelay    Category = "relay"
	CategoryLight    Category = "light"
	CategoryAudio    Category = "audio"
)

// selfTestTimeout bounds each device check.
const selfTestTimeout = 3 * time.Second

// Devices is the set of configured devices handed to NewRegistry.
// Nil entries mean "not configured".
type Devices struct {
	Actuator Actuator
	Relays   []Relay
	Light    Light
	Audio    Audio
}

// DeviceStatus describes one device after self-test.
type DeviceStatus struct {
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Configured bool     `json:"configured"`
	Available  bool     `json:"available"`
	Error      string   `json:"error,omitempty"`
}

// Registry owns every device handle for the life of the process.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	actuator Actuator
	relays   map[string]Relay
	order    []string
	light    Light
	audio    Audio
	status   map[string]*DeviceStatus
	closers  []io.Closer
	logger   Logger

	// The configured devices, kept after self-test disables them so that
	// SafeState can still try to de-energise them.
	wiredActuator Actuator
	wiredRelays   map[string]Relay
}

// NewRegistry takes ownership of the devices. Missing devices are replaced
// by disabled implementations. Until SelfTest runs every configured device
// is assumed available.
func NewRegistry(d Devices) *Registry {
	r := &Registry{
		relays:        make(map[string]Relay, len(d.Relays)),
		status:        make(map[string]*DeviceStatus),
		logger:        noopLogger{},
		wiredActuator: d.Actuator,
		wiredRelays:   make(map[string]Relay, len(d.Relays)),
	}

	r.actuator = d.Actuator
	r.track("actuator", CategoryActuator, d.Actuator != nil, d.Actuator)
	if d.Actuator == nil {
		r.actuator = disabledActuator{reason: "not configured"}
	}

	for _, relay := range d.Relays {
		r.relays[relay.Name()] = relay
		r.wiredRelays[relay.Name()] = relay
		r.order = append(r.order, relay.Name())
		r.track(relayKey(relay.Name()), CategoryRelay, true, relay)
	}

	r.light = d.Light
	r.track("light", CategoryLight, d.Light != nil, d.Light)
	if d.Light == nil {
		r.light = disabledLight{reason: "not configured"}
	}

	r.audio = d.Audio
	r.track("audio", CategoryAudio, d.Audio != nil, d.Audio)
	if d.Audio == nil {
		r.audio = disabledAudio{reason: "not configured"}
	}

	return r
}

func relayKey(name string) string {
	return "relay:" + name
}

func (r *Registry) track(name string, cat Category, configured bool, dev any) {
	st := &DeviceStatus{Name: name, Category: cat, Configured: configured, Available: configured}
	if !configured {
		st.Error = "not configured"
	}
	r.status[name] = st
	if c, ok := dev.(io.Closer); ok && configured {
		r.closers = append(r.closers, c)
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SelfTest checks every configured device and disables the ones that fail.
// It returns ErrNoUsableHardware when nothing is left available.
func (r *Registry) SelfTest(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	check := func(name string, fn func(context.Context) error) {
		st := r.status[name]
		if !st.Configured {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, selfTestTimeout)
		defer cancel()
		if err := fn(cctx); err != nil {
			st.Available = false
			st.Error = err.Error()
			r.logger.Warn("device failed self-test, disabling", "device", name, "error", err)
			return
		}
		st.Available = true
		st.Error = ""
		r.logger.Info("device passed self-test", "device", name)
	}

	check("actuator", func(context.Context) error { return r.actuator.Stop() })
	if !r.status["actuator"].Available && r.status["actuator"].Configured {
		r.actuator = disabledActuator{reason: r.status["actuator"].Error}
	}

	for _, name := range r.order {
		relay := r.relays[name]
		key := relayKey(name)
		check(key, func(ctx context.Context) error { return relay.Set(ctx, false) })
		if st := r.status[key]; !st.Available {
			r.relays[name] = disabledRelay{name: name, reason: st.Error}
		}
	}

	check("light", r.light.Ping)
	if st := r.status["light"]; st.Configured && !st.Available {
		r.light = disabledLight{reason: st.Error}
	}

	check("audio", r.audio.Check)
	if st := r.status["audio"]; st.Configured && !st.Available {
		r.audio = disabledAudio{reason: st.Error}
	}

	if !r.usableLocked() {
		return ErrNoUsableHardware
	}
	return nil
}

// Usable reports whether at least one configured device is available.
func (r *Registry) Usable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usableLocked()
}

func (r *Registry) usableLocked() bool {
	for _, st := range r.status {
		if st.Configured && st.Available {
			return true
		}
	}
	return false
}

// Status returns the state of every device, sorted by name.
func (r *Registry) Status() []DeviceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Actuator returns the motor handle.
func (r *Registry) Actuator() Actuator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actuator
}

// Relay returns the named relay.
func (r *Registry) Relay(name string) (Relay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	relay, ok := r.relays[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRelay, name)
	}
	return relay, nil
}

// Relays returns every relay in configuration order.
func (r *Registry) Relays() []Relay {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Relay, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.relays[name])
	}
	return out
}

// Light returns the light handle.
func (r *Registry) Light() Light {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.light
}

// Audio returns the audio handle.
func (r *Registry) Audio() Audio {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio
}

// SafeState stops the actuator, switches every relay off and stops all audio.
// Every device is attempted even if an earlier one fails. Devices disabled by
// self-test are attempted too, but their failures are only logged.
func (r *Registry) SafeState() error {
	r.mu.RLock()
	actuator := r.actuator
	audio := r.audio
	relays := make([]Relay, 0, len(r.order))
	var disabled []Relay
	for _, name := range r.order {
		if r.status[relayKey(name)].Available {
			relays = append(relays, r.relays[name])
		} else {
			disabled = append(disabled, r.wiredRelays[name])
		}
	}
	var stale Actuator
	if st := r.status["actuator"]; st.Configured && !st.Available {
		stale = r.wiredActuator
	}
	r.mu.RUnlock()

	if stale != nil {
		if err := stale.Stop(); err != nil {
			r.logger.Warn("stopping disabled actuator", "error", err)
		}
	}
	for _, relay := range disabled {
		if err := relay.Set(context.Background(), false); err != nil {
			r.logger.Warn("switching off disabled relay", "relay", relay.Name(), "error", err)
		}
	}

	var errs []error
	if err := actuator.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping actuator: %w", err))
	}
	for _, relay := range relays {
		if err := relay.Set(context.Background(), false); err != nil {
			errs = append(errs, fmt.Errorf("switching off relay %s: %w", relay.Name(), err))
		}
	}
	if err := audio.StopAll(); err != nil {
		errs = append(errs, fmt.Errorf("stopping audio: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		r.logger.Error("safe state incomplete", "error", err)
	} else {
		r.logger.Info("devices in safe state")
	}
	return err
}

// Close forces the safe state and releases every device.
func (r *Registry) Close() error {
	errs := []error{r.SafeState()}
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
