package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/haunt-core/internal/hardware"
)

// Devices is the part of the hardware registry the engine drives.
// *hardware.Registry satisfies it.
type Devices interface {
	Actuator() hardware.Actuator
	Relay(name string) (hardware.Relay, error)
	Light() hardware.Light
	Audio() hardware.Audio
	SafeState() error
}

// Notifier receives progress events.
type Notifier interface {
	// Broadcast sends an event to every subscriber of channel.
	Broadcast(channel string, payload any)
}

// EventAction is published after every action.
const EventAction = "sequence.action"

// Engine runs sequences against a device registry.
type Engine struct {
	devices  Devices
	budget   time.Duration
	clock    Clock
	notifier Notifier
	logger   Logger
}

// NewEngine creates an engine. budget is the default max_sequence_duration
// for runs started with NewRun; zero disables the limit.
//
// Parameters:
//   - devices: the hardware registry (required)
//   - budget: default run budget
//   - logger: may be nil
func NewEngine(devices Devices, budget time.Duration, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		devices: devices,
		budget:  budget,
		clock:   SystemClock{},
		logger:  logger,
	}
}

// SetClock replaces the wall clock. Intended for tests and simulation.
func (e *Engine) SetClock(c Clock) {
	e.clock = c
}

// SetNotifier sets where progress events go. Nil disables them.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// NewRun starts a RunContext now with the engine's budget.
func (e *Engine) NewRun() *RunContext {
	return NewRunContext(e.clock.Now(), e.budget)
}

// Run executes seq in order and reports what happened. It never returns an
// error; failures and aborts are described by the Outcome. A nil rc starts
// a fresh run.
func (e *Engine) Run(ctx context.Context, seq Sequence, rc *RunContext) Outcome {
	if rc == nil {
		rc = e.NewRun()
	}
	start := rc.StartedAt
	if start.IsZero() {
		start = e.clock.Now()
	}
	out := Outcome{RunID: rc.ID, Sequence: seq.Name, StartedAt: start}

	// runCtx is done as soon as rc is cancelled. Every device call gets it,
	// so an action racing an emergency stop cannot energise anything.
	runCtx, cancelRun := rc.Bind(ctx)
	defer cancelRun()

	e.logger.Info("sequence started",
		"sequence", seq.Name,
		"run_id", rc.ID,
		"actions", len(seq.Actions),
		"budget", rc.Budget,
	)

	for i, a := range seq.Actions {
		if reason := e.abortReason(ctx, rc, start); reason != "" {
			out.Status = StatusAborted
			out.Reason = reason
			out.Skipped += len(seq.Actions) - i
			break
		}

		err := e.dispatch(ctx, runCtx, a)
		if err != nil && rc.Cancelled() {
			// Cut short or refused by Cancel; the abort check ends the run.
			out.Skipped++
			e.logger.Debug("action interrupted by cancel", "run_id", rc.ID, "index", i, "action", a.String())
			e.secure(a)
			continue
		}
		if err == nil {
			out.Executed++
			e.logger.Debug("action done", "run_id", rc.ID, "index", i, "action", a.String())
			e.publish(rc, seq, i, a, nil)
			continue
		}

		if a.Kind() == KindInvalid {
			out.Skipped++
		}
		out.Failures = append(out.Failures, ActionFailure{
			Index:  i,
			Kind:   a.Kind(),
			Action: a.String(),
			Error:  err.Error(),
			Err:    err,
		})
		e.logger.Warn("action failed, continuing",
			"run_id", rc.ID,
			"index", i,
			"action", a.String(),
			"error", err,
		)
		e.publish(rc, seq, i, a, err)
		e.secure(a)
	}

	// A cancel that lands during the last action still counts.
	if out.Status == "" && rc.Cancelled() {
		out.Status = StatusAborted
		out.Reason = ReasonCancelled
	}

	switch {
	case out.Status == StatusAborted:
		e.logger.Warn("sequence aborted, forcing safe state",
			"sequence", seq.Name,
			"run_id", rc.ID,
			"reason", out.Reason,
			"skipped", out.Skipped,
		)
		if err := e.devices.SafeState(); err != nil {
			e.logger.Error("safe state after abort incomplete", "run_id", rc.ID, "error", err)
		}
	case len(out.Failures) > 0:
		out.Status = StatusPartial
	default:
		out.Status = StatusCompleted
	}

	out.Duration = e.clock.Now().Sub(start)
	e.logger.Info("sequence finished",
		"sequence", seq.Name,
		"run_id", rc.ID,
		"status", out.Status,
		"executed", out.Executed,
		"failed", len(out.Failures),
		"skipped", out.Skipped,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out
}

func (e *Engine) abortReason(ctx context.Context, rc *RunContext, start time.Time) Reason {
	if rc.Cancelled() || ctx.Err() != nil {
		return ReasonCancelled
	}
	if rc.Budget > 0 && e.clock.Now().Sub(start) > rc.Budget {
		return ReasonMaxDuration
	}
	return ""
}

// dispatch runs one action. ctx is the run's parent context; runCtx is also
// cancelled by RunContext.Cancel and is what the devices see.
func (e *Engine) dispatch(ctx, runCtx context.Context, a Action) error {
	switch a := a.(type) {
	case MotorAction:
		return e.runMotor(runCtx, a)
	case RelayAction:
		relay, err := e.relay(a.Device)
		if err != nil {
			return err
		}
		return relay.Set(runCtx, a.On)
	case LightAction:
		return e.runLight(ctx, runCtx, a)
	case AudioAction:
		return e.runAudio(runCtx, a)
	case SleepAction:
		if err := e.clock.Sleep(runCtx, a.Duration); err != nil {
			// Woken early; the next abort check ends the run.
			e.logger.Debug("sleep interrupted", "error", err)
		}
		return nil
	case InvalidAction:
		return a.Err
	default:
		return fmt.Errorf("%w: unhandled action %T", ErrInvalidAction, a)
	}
}

func (e *Engine) runMotor(ctx context.Context, a MotorAction) error {
	actuator := e.devices.Actuator()
	switch a.Command {
	case MotorStop:
		return actuator.Stop()
	case MotorForward:
		return actuator.Move(ctx, hardware.Forward, a.Duration)
	case MotorReverse:
		return actuator.Move(ctx, hardware.Reverse, a.Duration)
	default:
		return fmt.Errorf("%w: motor command %d", ErrInvalidAction, a.Command)
	}
}

// runLight sends colour changes with runCtx. An async flash outlives the
// run's cancellation but not the parent context.
func (e *Engine) runLight(ctx, runCtx context.Context, a LightAction) error {
	light := e.devices.Light()
	switch a.Command {
	case LightColor:
		return light.SetColor(runCtx, a.Color)
	case LightOn:
		return light.On(runCtx)
	case LightOff:
		return light.Off(runCtx)
	case LightFlash:
		if a.Async {
			done := light.Flash(ctx, a.Count)
			go func() {
				if err := <-done; err != nil && ctx.Err() == nil {
					e.logger.Warn("background light flash failed", "count", a.Count, "error", err)
				}
			}()
			return nil
		}
		return <-light.Flash(runCtx, a.Count)
	default:
		return fmt.Errorf("%w: light command %q", ErrInvalidAction, a.Command)
	}
}

func (e *Engine) runAudio(ctx context.Context, a AudioAction) error {
	pb, err := e.devices.Audio().Play(ctx, a.File)
	if err != nil {
		return err
	}
	if !a.Wait {
		return nil
	}
	if err := pb.Wait(ctx); err != nil {
		return fmt.Errorf("audio %s: %w", a.File, err)
	}
	return nil
}

func (e *Engine) relay(name string) (hardware.Relay, error) {
	relay, err := e.devices.Relay(name)
	if err != nil {
		if errors.Is(err, hardware.ErrUnknownRelay) {
			return nil, fmt.Errorf("%w: relay %q", ErrUnknownDevice, name)
		}
		return nil, err
	}
	return relay, nil
}

// secure de-energises whatever a failed action was driving.
func (e *Engine) secure(a Action) {
	switch a := a.(type) {
	case MotorAction:
		if err := e.devices.Actuator().Stop(); err != nil {
			e.logger.Error("stopping actuator after failed action", "error", err)
		}
	case RelayAction:
		relay, err := e.relay(a.Device)
		if err != nil {
			return
		}
		if err := relay.Set(context.Background(), false); err != nil {
			e.logger.Error("switching relay off after failed action", "relay", a.Device, "error", err)
		}
	}
}

func (e *Engine) publish(rc *RunContext, seq Sequence, index int, a Action, err error) {
	if e.notifier == nil {
		return
	}
	payload := map[string]any{
		"run_id":   rc.ID,
		"sequence": seq.Name,
		"index":    index,
		"kind":     string(a.Kind()),
		"action":   a.String(),
		"ok":       err == nil,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	e.notifier.Broadcast(EventAction, payload)
}
