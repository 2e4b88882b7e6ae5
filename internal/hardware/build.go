package hardware

import (
	"errors"
	"fmt"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/pins"
)

// Options carries the collaborators Open needs beyond the config.
type Options struct {
	// Publisher is required for the mqtt light driver.
	Publisher Publisher
	QoS       byte
	Logger    Logger
}

// Open builds a Registry from the hardware section. Pin assignment errors
// abort; everything else is left to SelfTest.
func Open(cfg config.HardwareConfig, provider pins.Provider, opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	var devices Devices
	var closers []interface{ Close() error }
	fail := func(err error) (*Registry, error) {
		for _, c := range closers {
			_ = c.Close() //nolint:errcheck // already failing
		}
		return nil, err
	}

	if cfg.Motor.Enabled {
		if cfg.Motor.ForwardPin == cfg.Motor.ReversePin {
			return fail(fmt.Errorf("%w: motor forward and reverse both on %d", ErrInvalidPins, cfg.Motor.ForwardPin))
		}
		fwd, err := provider.Pin(cfg.Motor.ForwardPin)
		if err != nil {
			return fail(fmt.Errorf("%w: motor forward: %v", ErrInvalidPins, err))
		}
		rev, err := provider.Pin(cfg.Motor.ReversePin)
		if err != nil {
			return fail(fmt.Errorf("%w: motor reverse: %v", ErrInvalidPins, err))
		}
		motor, err := NewMotor(fwd, rev, cfg.Motor.MaxMove.Std())
		if err != nil {
			return fail(err)
		}
		motor.SetLogger(logger)
		closers = append(closers, motor)
		devices.Actuator = motor
	}

	for _, rc := range cfg.Relays {
		pin, err := provider.Pin(rc.Pin)
		if err != nil {
			return fail(fmt.Errorf("%w: relay %s: %v", ErrInvalidPins, rc.Name, err))
		}
		relay, err := NewGPIORelay(rc.Name, pin, rc.ActiveLow)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, relay)
		devices.Relays = append(devices.Relays, relay)
	}

	light, err := openLight(cfg.Light, opts)
	if err != nil {
		return fail(err)
	}
	if light != nil {
		light.SetLogger(logger)
		devices.Light = light
	}

	if cfg.Audio.Enabled {
		player := NewPlayer(cfg.Audio.Player, cfg.Audio.Args, cfg.Audio.Directory)
		player.SetLogger(logger)
		devices.Audio = player
	}

	reg := NewRegistry(devices)
	reg.SetLogger(logger)
	return reg, nil
}

func openLight(cfg config.LightConfig, opts Options) (*ColorLight, error) {
	flash := Color{R: 255, G: 255, B: 255}
	if cfg.FlashColor != "" {
		c, err := ColorByName(cfg.FlashColor)
		if err != nil {
			return nil, fmt.Errorf("light flash_color: %w", err)
		}
		flash = c
	}

	var transport LightTransport
	switch cfg.Driver {
	case config.LightNone, "":
		return nil, nil
	case config.LightGovee:
		transport = NewGovee(cfg.Address, cfg.Port)
	case config.LightMQTT:
		if opts.Publisher == nil {
			return nil, errors.New("hardware: mqtt light requires mqtt to be enabled")
		}
		transport = NewMQTTLight(opts.Publisher, cfg.Topic, opts.QoS)
	default:
		return nil, fmt.Errorf("hardware: unknown light driver %q", cfg.Driver)
	}
	return NewColorLight(transport, cfg.FlashInterval.Std(), flash), nil
}
