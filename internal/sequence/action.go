package sequence

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/haunt-core/internal/hardware"
	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
)

// Kind is an action's tag.
type Kind string

const (
	KindMotor   Kind = "motor"
	KindRelay   Kind = "relay"
	KindLight   Kind = "light"
	KindAudio   Kind = "audio"
	KindSleep   Kind = "sleep"
	KindInvalid Kind = "invalid"
)

// Action is one step of a sequence. The set of implementations is closed.
type Action interface {
	Kind() Kind
	String() string
	action()
}

// MotorCommand selects what a MotorAction does.
type MotorCommand int

const (
	MotorForward MotorCommand = iota + 1
	MotorReverse
	MotorStop
)

// MotorAction runs the actuator for Duration, or stops it.
type MotorAction struct {
	Command  MotorCommand
	Duration time.Duration
}

func (MotorAction) Kind() Kind { return KindMotor }
func (MotorAction) action()    {}

func (a MotorAction) String() string {
	switch a.Command {
	case MotorForward:
		return fmt.Sprintf("motor forward %v", a.Duration)
	case MotorReverse:
		return fmt.Sprintf("motor reverse %v", a.Duration)
	default:
		return "motor stop"
	}
}

// RelayAction switches a named relay.
type RelayAction struct {
	Device string
	On     bool
}

func (RelayAction) Kind() Kind { return KindRelay }
func (RelayAction) action()    {}

func (a RelayAction) String() string {
	state := "off"
	if a.On {
		state = "on"
	}
	return fmt.Sprintf("relay %s %s", a.Device, state)
}

// LightCommand selects what a LightAction does.
type LightCommand string

const (
	LightColor LightCommand = "color"
	LightFlash LightCommand = "flash"
	LightOn    LightCommand = "on"
	LightOff   LightCommand = "off"
)

// LightAction drives the colour light. Color is used by LightColor, Count
// and Async by LightFlash.
type LightAction struct {
	Command LightCommand
	Color   hardware.Color
	Count   int
	Async   bool
}

func (LightAction) Kind() Kind { return KindLight }
func (LightAction) action()    {}

func (a LightAction) String() string {
	switch a.Command {
	case LightColor:
		return fmt.Sprintf("light color %s", a.Color)
	case LightFlash:
		if a.Async {
			return fmt.Sprintf("light flash x%d async", a.Count)
		}
		return fmt.Sprintf("light flash x%d", a.Count)
	default:
		return "light " + string(a.Command)
	}
}

// AudioAction plays a file, optionally waiting for it to finish.
type AudioAction struct {
	File string
	Wait bool
}

func (AudioAction) Kind() Kind { return KindAudio }
func (AudioAction) action()    {}

func (a AudioAction) String() string {
	if a.Wait {
		return fmt.Sprintf("audio play %s (wait)", a.File)
	}
	return "audio play " + a.File
}

// SleepAction pauses the sequence.
type SleepAction struct {
	Duration time.Duration
}

func (SleepAction) Kind() Kind { return KindSleep }
func (SleepAction) action()    {}

func (a SleepAction) String() string {
	return fmt.Sprintf("sleep %v", a.Duration)
}

// InvalidAction stands in for an action that could not be parsed.
type InvalidAction struct {
	// Type is the tag as written in the configuration.
	Type string
	Err  error
}

func (InvalidAction) Kind() Kind { return KindInvalid }
func (InvalidAction) action()    {}

func (a InvalidAction) String() string {
	return fmt.Sprintf("invalid %q", a.Type)
}

// Sequence is a named, ordered list of actions.
type Sequence struct {
	Name    string
	Actions []Action
}

// Build parses every configured action. It never fails: malformed entries
// become InvalidAction values and are reported by Problems.
func Build(name string, actions []config.ActionConfig) Sequence {
	seq := Sequence{Name: name, Actions: make([]Action, 0, len(actions))}
	for _, ac := range actions {
		seq.Actions = append(seq.Actions, Parse(ac))
	}
	return seq
}

// Problems returns one error per InvalidAction, prefixed with its position.
func (s Sequence) Problems() []error {
	var out []error
	for i, a := range s.Actions {
		if inv, ok := a.(InvalidAction); ok {
			out = append(out, fmt.Errorf("%s[%d]: %w", s.Name, i, inv.Err))
		}
	}
	return out
}

// Parse converts one configured action.
func Parse(ac config.ActionConfig) Action {
	var (
		a   Action
		err error
	)
	switch Kind(normalise(ac.Type)) {
	case KindMotor:
		a, err = parseMotor(ac)
	case KindRelay:
		a, err = parseRelay(ac)
	case KindLight:
		a, err = parseLight(ac)
	case KindAudio:
		a, err = parseAudio(ac)
	case KindSleep:
		a, err = parseSleep(ac)
	default:
		err = fmt.Errorf("unknown action type %q", ac.Type)
	}
	if err != nil {
		return InvalidAction{Type: ac.Type, Err: fmt.Errorf("%w: %v", ErrInvalidAction, err)}
	}
	return a
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parseMotor(ac config.ActionConfig) (Action, error) {
	dir := normalise(ac.Direction)
	if dir == "" {
		dir = normalise(ac.Command)
	}
	if dir == "stop" {
		return MotorAction{Command: MotorStop}, nil
	}
	parsed, err := hardware.ParseDirection(dir)
	if err != nil {
		return nil, fmt.Errorf("motor: %w", err)
	}
	if ac.Duration.Std() <= 0 {
		return nil, fmt.Errorf("motor %s: duration must be positive", parsed)
	}
	cmd := MotorForward
	if parsed == hardware.Reverse {
		cmd = MotorReverse
	}
	return MotorAction{Command: cmd, Duration: ac.Duration.Std()}, nil
}

func parseRelay(ac config.ActionConfig) (Action, error) {
	if strings.TrimSpace(ac.Device) == "" {
		return nil, fmt.Errorf("relay: device is required")
	}
	state := normalise(ac.State)
	if state == "" {
		state = normalise(ac.Command)
	}
	switch state {
	case "on", "true":
		return RelayAction{Device: ac.Device, On: true}, nil
	case "off", "false":
		return RelayAction{Device: ac.Device, On: false}, nil
	default:
		return nil, fmt.Errorf("relay %s: state must be on or off, got %q", ac.Device, ac.State)
	}
}

func parseLight(ac config.ActionConfig) (Action, error) {
	cmd := LightCommand(normalise(ac.Command))
	if cmd == "" {
		switch {
		case ac.Count > 0:
			cmd = LightFlash
		case ac.Color != nil || ac.Preset != "":
			cmd = LightColor
		default:
			return nil, fmt.Errorf("light: command is required")
		}
	}

	switch cmd {
	case LightColor, "set_color":
		c, err := lightColor(ac)
		if err != nil {
			return nil, err
		}
		return LightAction{Command: LightColor, Color: c}, nil
	case LightFlash:
		if ac.Count < 1 {
			return nil, fmt.Errorf("light flash: count must be at least 1")
		}
		return LightAction{Command: LightFlash, Count: ac.Count, Async: ac.Async}, nil
	case LightOn, LightOff:
		return LightAction{Command: cmd}, nil
	default:
		return nil, fmt.Errorf("light: unknown command %q", ac.Command)
	}
}

func lightColor(ac config.ActionConfig) (hardware.Color, error) {
	switch {
	case ac.Color != nil:
		c, err := hardware.RGB(ac.Color.R, ac.Color.G, ac.Color.B)
		if err != nil {
			return hardware.Color{}, fmt.Errorf("light color: %w", err)
		}
		return c, nil
	case ac.Preset != "":
		c, err := hardware.ColorByName(ac.Preset)
		if err != nil {
			return hardware.Color{}, fmt.Errorf("light color: %w", err)
		}
		return c, nil
	default:
		return hardware.Color{}, fmt.Errorf("light color: color or preset is required")
	}
}

func parseAudio(ac config.ActionConfig) (Action, error) {
	if strings.TrimSpace(ac.File) == "" {
		return nil, fmt.Errorf("audio: file is required")
	}
	return AudioAction{File: ac.File, Wait: ac.Wait}, nil
}

func parseSleep(ac config.ActionConfig) (Action, error) {
	if ac.Duration.Std() <= 0 {
		return nil, fmt.Errorf("sleep: duration must be positive")
	}
	return SleepAction{Duration: ac.Duration.Std()}, nil
}
