package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/haunt-core/internal/detector"
	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/rangefinder"
	"github.com/nerrad567/haunt-core/internal/sequence"
)

// Event channels published to the Notifier.
const (
	EventStateChanged     = "state.changed"
	EventPhaseChanged     = "phase.changed"
	EventSequenceStarted  = "sequence.started"
	EventSequenceFinished = "sequence.finished"
	EventSensorFault      = "sensor.fault"
	EventSensorRecovered  = "sensor.recovered"
	EventEmergencyStop    = "emergency.stop"
)

// Trigger sources recorded with every run.
const (
	SourceSensor  = "sensor"
	SourceStartup = "startup"
)

const (
	defaultReadingInterval = 100 * time.Millisecond
	historyTimeout         = 5 * time.Second
)

// SafeStater forces every device into its safe state.
// *hardware.Registry satisfies it.
type SafeStater interface {
	SafeState() error
}

// Telemetry receives samples, detector transitions and run outcomes.
// *influxdb.Client satisfies it.
type Telemetry interface {
	WriteSample(sensor string, distanceCM float64, valid bool, at time.Time)
	WriteDetection(state string, meanCM float64, fault bool, at time.Time)
	WriteRun(sequence, status, runID string, executed, failed, skipped int, duration time.Duration, at time.Time)
}

// History stores run outcomes. *history.SQLiteRepository satisfies it.
type History interface {
	Record(ctx context.Context, outcome sequence.Outcome, source string) error
}

// StatePublisher receives a snapshot after every phase or detector change.
// *mqtt.EventPublisher satisfies it.
type StatePublisher interface {
	PublishState(state any) error
}

// Config holds loop timing.
type Config struct {
	ReadingInterval time.Duration
	Cooldown        time.Duration
}

// ConfigFrom extracts loop timing from the detection config section.
func ConfigFrom(d config.DetectionConfig) Config {
	return Config{
		ReadingInterval: d.ReadingInterval.Std(),
		Cooldown:        d.CooldownDuration.Std(),
	}
}

// Deps are the collaborators of a Controller. Sensor, Detector, Engine and
// Devices are required; the rest may be nil.
type Deps struct {
	Sensor   rangefinder.Sensor
	Detector *detector.Detector
	Engine   *sequence.Engine
	Devices  SafeStater

	Setup   sequence.Sequence
	Trigger sequence.Sequence

	Notifier  sequence.Notifier
	State     StatePublisher
	Telemetry Telemetry
	History   History
	Logger    Logger
}

// Controller owns the polling loop and the single running sequence.
type Controller struct {
	cfg       Config
	sensor    rangefinder.Sensor
	detector  *detector.Detector
	engine    *sequence.Engine
	devices   SafeStater
	setup     sequence.Sequence
	trigger   sequence.Sequence
	notifier  sequence.Notifier
	state     StatePublisher
	telemetry Telemetry
	history   History
	logger    Logger

	phase   atomic.Int32
	started atomic.Bool

	// mu guards the fields below and orders wg.Add against the final wg.Wait.
	mu         sync.Mutex
	runCtx     context.Context //nolint:containedctx // the context of the active Run call
	current    *sequence.RunContext
	lastRun    *sequence.Outcome
	stopped    bool
	stopReason string

	estop chan struct{}
	wg    sync.WaitGroup
}

// New validates the dependencies and creates a controller in the idle phase.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Sensor == nil:
		return nil, fmt.Errorf("%w: sensor", ErrMissingDependency)
	case deps.Detector == nil:
		return nil, fmt.Errorf("%w: detector", ErrMissingDependency)
	case deps.Engine == nil:
		return nil, fmt.Errorf("%w: engine", ErrMissingDependency)
	case deps.Devices == nil:
		return nil, fmt.Errorf("%w: devices", ErrMissingDependency)
	}
	if cfg.ReadingInterval <= 0 {
		cfg.ReadingInterval = defaultReadingInterval
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Controller{
		cfg:       cfg,
		sensor:    deps.Sensor,
		detector:  deps.Detector,
		engine:    deps.Engine,
		devices:   deps.Devices,
		setup:     deps.Setup,
		trigger:   deps.Trigger,
		notifier:  deps.Notifier,
		state:     deps.State,
		telemetry: deps.Telemetry,
		history:   deps.History,
		logger:    logger,
		estop:     make(chan struct{}),
	}, nil
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// Run executes the setup sequence and then polls the sensor until ctx is
// cancelled or EmergencyStop is called. Either way the hardware is left in
// its safe state and any running sequence has finished before Run returns.
//
// Returns:
//   - nil after ctx is cancelled
//   - ErrEmergencyStopped after EmergencyStop
//   - ErrAlreadyRunning if Run was already called
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	c.logger.Info("controller started",
		"sensor", c.sensor.Name(),
		"reading_interval", c.cfg.ReadingInterval,
		"cooldown", c.cfg.Cooldown,
		"trigger_actions", len(c.trigger.Actions),
	)
	c.publishState()

	if len(c.setup.Actions) > 0 {
		c.runSetup(ctx)
	}

	ticker := time.NewTicker(c.cfg.ReadingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.EmergencyStop("shutdown") //nolint:errcheck // logged inside
			c.wg.Wait()
			c.logger.Info("controller stopped")
			return nil
		case <-c.estop:
			c.wg.Wait()
			return ErrEmergencyStopped
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// runSetup runs the setup sequence synchronously. The phase is running for
// the duration so triggers are refused.
func (c *Controller) runSetup(ctx context.Context) {
	rc, err := c.begin()
	if err != nil {
		return
	}
	defer c.wg.Done()
	c.phaseChanged(PhaseRunning)
	c.execute(ctx, c.setup, rc, SourceStartup)
	if c.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseIdle)) {
		c.phaseChanged(PhaseIdle)
	}
}

// poll takes one sample and acts on the detector's verdict.
func (c *Controller) poll(ctx context.Context) {
	sample := c.sensor.Sample(ctx)
	if ctx.Err() != nil {
		return
	}
	if c.telemetry != nil {
		c.telemetry.WriteSample(sample.Sensor, sample.DistanceCM, sample.Valid, sample.Timestamp)
	}

	st := c.detector.Observe(sample)

	if st.FaultRaised {
		c.logger.Error("sensor fault", "sensor", c.sensor.Name(), "failures", st.Failures, "error", st.Err)
		c.notify(EventSensorFault, map[string]any{
			"sensor":   c.sensor.Name(),
			"failures": st.Failures,
			"error":    errString(st.Err),
		})
	}
	if st.FaultCleared {
		c.logger.Info("sensor recovered", "sensor", c.sensor.Name())
		c.notify(EventSensorRecovered, map[string]any{"sensor": c.sensor.Name()})
	}
	if st.Changed || st.FaultRaised || st.FaultCleared {
		if c.telemetry != nil {
			c.telemetry.WriteDetection(st.State.String(), st.Mean, st.Fault, st.At)
		}
	}
	if st.Changed {
		c.logger.Debug("detection state changed",
			"from", st.Previous.String(),
			"to", st.State.String(),
			"distance_cm", st.Distance,
			"mean_cm", st.Mean,
		)
		c.notify(EventStateChanged, st)
		c.publishState()
	}

	if st.State != detector.Triggered {
		return
	}
	if _, err := c.start(ctx, SourceSensor); err != nil && st.Changed {
		c.logger.Info("detection ignored", "phase", c.Phase().String(), "error", err)
	}
}

// Trigger starts the trigger sequence on behalf of source (api, mqtt) and
// returns the run ID.
//
// Returns:
//   - ErrNotRunning before Run has started
//   - ErrBusy while a sequence is running or cooling down
//   - ErrEmergencyStopped after an emergency stop
func (c *Controller) Trigger(source string) (string, error) {
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if ctx == nil {
		return "", ErrNotRunning
	}
	runID, err := c.start(ctx, source)
	if err != nil {
		c.logger.Info("manual trigger refused", "source", source, "phase", c.Phase().String(), "error", err)
	}
	return runID, err
}

// begin claims the single run slot. The caller must call c.wg.Done when
// the run is over.
func (c *Controller) begin() (*sequence.RunContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, ErrEmergencyStopped
	}
	if !c.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseRunning)) {
		return nil, ErrBusy
	}
	rc := c.engine.NewRun()
	c.current = rc
	c.wg.Add(1)
	return rc, nil
}

// start launches the trigger sequence on its own goroutine.
func (c *Controller) start(ctx context.Context, source string) (string, error) {
	rc, err := c.begin()
	if err != nil {
		return "", err
	}

	go func() {
		defer c.wg.Done()
		c.phaseChanged(PhaseRunning)
		c.execute(ctx, c.trigger, rc, source)
		c.cooldown(ctx)
	}()
	return rc.ID, nil
}

// execute runs one sequence and reports the outcome everywhere it goes.
func (c *Controller) execute(ctx context.Context, seq sequence.Sequence, rc *sequence.RunContext, source string) sequence.Outcome {
	c.logger.Info("sequence started", "sequence", seq.Name, "run_id", rc.ID, "source", source)
	c.notify(EventSequenceStarted, map[string]any{
		"run_id":   rc.ID,
		"sequence": seq.Name,
		"source":   source,
	})

	outcome := c.engine.Run(ctx, seq, rc)

	c.mu.Lock()
	if c.current == rc {
		c.current = nil
	}
	c.lastRun = &outcome
	c.mu.Unlock()

	switch outcome.Status {
	case sequence.StatusCompleted:
		c.logger.Info("sequence finished", "sequence", seq.Name, "run_id", rc.ID, "status", outcome.Status, "duration", outcome.Duration)
	case sequence.StatusPartial:
		c.logger.Warn("sequence finished with failures", "sequence", seq.Name, "run_id", rc.ID, "failures", len(outcome.Failures))
	default:
		c.logger.Warn("sequence aborted", "sequence", seq.Name, "run_id", rc.ID, "reason", outcome.Reason, "skipped", outcome.Skipped)
	}
	c.notify(EventSequenceFinished, outcome)

	if c.telemetry != nil {
		c.telemetry.WriteRun(seq.Name, string(outcome.Status), outcome.RunID,
			outcome.Executed, len(outcome.Failures), outcome.Skipped, outcome.Duration, outcome.StartedAt)
	}
	if c.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
		if err := c.history.Record(hctx, outcome, source); err != nil {
			c.logger.Error("recording run history failed", "run_id", rc.ID, "error", err)
		}
		cancel()
	}
	return outcome
}

// cooldown holds the controller in the cooldown phase, then clears the
// detector so a visitor still standing in front must be detected afresh.
func (c *Controller) cooldown(ctx context.Context) {
	if !c.phase.CompareAndSwap(int32(PhaseRunning), int32(PhaseCooldown)) {
		return
	}
	c.phaseChanged(PhaseCooldown)

	timer := time.NewTimer(c.cfg.Cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-c.estop:
	}

	c.detector.Reset()
	if c.phase.CompareAndSwap(int32(PhaseCooldown), int32(PhaseIdle)) {
		c.phaseChanged(PhaseIdle)
	}
}

// EmergencyStop cancels the running sequence and forces the hardware safe
// state. It may be called from any goroutine and more than once; every call
// re-applies the safe state, only the first publishes the event and ends Run.
func (c *Controller) EmergencyStop(reason string) error {
	c.mu.Lock()
	first := !c.stopped
	c.stopped = true
	if first {
		c.stopReason = reason
	}
	rc := c.current
	c.mu.Unlock()

	if rc != nil {
		rc.Cancel()
	}
	err := c.devices.SafeState()
	if err != nil {
		c.logger.Error("safe state incomplete", "reason", reason, "error", err)
	}
	if !first {
		return err
	}

	c.phase.Store(int32(PhaseStopped))
	runID := ""
	if rc != nil {
		runID = rc.ID
	}
	c.logger.Warn("emergency stop", "reason", reason, "run_id", runID)
	c.notify(EventEmergencyStop, map[string]any{
		"reason": reason,
		"run_id": runID,
		"error":  errString(err),
	})
	c.notify(EventPhaseChanged, map[string]any{"phase": PhaseStopped})
	c.publishState()
	close(c.estop)
	return err
}

// Stopped reports whether EmergencyStop has been called.
func (c *Controller) Stopped() bool {
	select {
	case <-c.estop:
		return true
	default:
		return false
	}
}

func (c *Controller) phaseChanged(p Phase) {
	c.logger.Debug("phase changed", "phase", p.String())
	c.notify(EventPhaseChanged, map[string]any{"phase": p})
	c.publishState()
}

func (c *Controller) notify(channel string, payload any) {
	if c.notifier != nil {
		c.notifier.Broadcast(channel, payload)
	}
}

func (c *Controller) publishState() {
	if c.state == nil {
		return
	}
	if err := c.state.PublishState(c.Status()); err != nil {
		c.logger.Debug("state publish failed", "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
