package main

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/nerrad567/haunt-core/migrations"

	"github.com/nerrad567/haunt-core/internal/api"
	"github.com/nerrad567/haunt-core/internal/controller"
	"github.com/nerrad567/haunt-core/internal/detector"
	"github.com/nerrad567/haunt-core/internal/hardware"
	"github.com/nerrad567/haunt-core/internal/history"
	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/database"
	"github.com/nerrad567/haunt-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/haunt-core/internal/infrastructure/logging"
	"github.com/nerrad567/haunt-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/haunt-core/internal/infrastructure/pins"
	"github.com/nerrad567/haunt-core/internal/rangefinder"
	"github.com/nerrad567/haunt-core/internal/sequence"
)

// sourceMQTT is recorded in run history for triggers from the command topic.
const sourceMQTT = "mqtt"

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Command-line options
//
// Returns:
//   - error: nil on clean shutdown or emergency stop, or the startup failure
func run(ctx context.Context, opts options) error { //nolint:gocognit,gocyclo // linear startup wiring
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log.Info("starting Haunt Core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
		"simulate", opts.simulate,
	)

	// Connect to MQTT broker (optional). Needed before hardware when the
	// light is driven over MQTT.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	registry, err := openHardware(ctx, cfg, opts, mqttClient, log)
	if registry != nil {
		defer func() {
			log.Info("releasing hardware")
			if closeErr := registry.Close(); closeErr != nil {
				log.Error("error releasing hardware", "error", closeErr)
			}
		}()
	}
	if err != nil {
		return err
	}
	for _, d := range registry.Status() {
		if d.Configured && !d.Available {
			log.Warn("device unavailable, its actions will be skipped", "device", d.Name, "error", d.Error)
		}
	}

	sensor, err := openSensor(cfg, opts)
	if err != nil {
		return fmt.Errorf("opening sensor: %w", err)
	}
	defer sensor.Close() //nolint:errcheck // best-effort release on exit

	// Connect to InfluxDB (optional)
	var telemetry controller.Telemetry
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open activation history (optional)
	var runs history.Repository
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		runs = history.NewSQLiteRepository(db.DB)
		log.Info("run history enabled", "path", cfg.Database.Path)
	} else {
		log.Info("run history disabled")
	}

	// Event fan-out: WebSocket clients always, MQTT when connected.
	hub := api.NewHub(log.Component("websocket"))
	notifiers := controller.Notifiers{hub}
	var statePub controller.StatePublisher
	if mqttClient != nil {
		events := mqtt.NewEventPublisher(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS))
		events.SetLogger(log.Component("mqtt"))
		notifiers = append(notifiers, events)
		statePub = events
	}

	engine := sequence.NewEngine(registry, cfg.Detection.MaxSequenceDuration.Std(), log.Component("sequence"))
	engine.SetNotifier(notifiers)

	setupSeq := buildSequence("setup", cfg.Sequences.Setup, log)
	triggerSeq := buildSequence("trigger", cfg.Sequences.Trigger, log)

	deps := controller.Deps{
		Sensor:    sensor,
		Detector:  detector.New(detector.ConfigFrom(cfg.Detection)),
		Engine:    engine,
		Devices:   registry,
		Setup:     setupSeq,
		Trigger:   triggerSeq,
		Notifier:  notifiers,
		State:     statePub,
		Telemetry: telemetry,
		History:   runs,
		Logger:    log.Component("controller"),
	}
	ctrl, err := controller.New(controller.ConfigFrom(cfg.Detection), deps)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	if mqttClient != nil {
		if subErr := subscribeCommands(mqttClient, byte(cfg.MQTT.QoS), ctrl, log); subErr != nil {
			return fmt.Errorf("subscribing to commands: %w", subErr)
		}
	}

	// Start HTTP API (optional)
	if cfg.API.Enabled {
		health := map[string]api.HealthChecker{}
		if mqttClient != nil {
			health["mqtt"] = mqttClient
		}
		if influxClient != nil {
			health["influxdb"] = influxClient
		}
		if db != nil {
			health["database"] = db
		}
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log.Component("api"),
			Controller: ctrl,
			Devices:    registry,
			History:    runs,
			Health:     health,
			Hub:        hub,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, watching for visitors",
		"warning_cm", cfg.Detection.Warning,
		"trigger_cm", cfg.Detection.Trigger,
	)

	err = ctrl.Run(ctx)
	switch {
	case errors.Is(err, controller.ErrEmergencyStopped):
		log.Warn("emergency stop, exiting", "reason", ctrl.Status().StopReason)
	case err != nil:
		return fmt.Errorf("controller: %w", err)
	default:
		log.Info("shutdown signal received, cleaning up")
	}

	log.Info("Haunt Core stopped")
	return nil
}

// loadConfig reads the config file and builds the configured logger.
func loadConfig(opts options) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath)
	return cfg, log, nil
}

// openPins returns simulated pins in simulate mode, periph host pins otherwise.
func openPins(simulate bool) (pins.Provider, error) {
	if simulate {
		return pins.NewSim(), nil
	}
	return pins.Open()
}

// openHardware builds the device registry and runs the self-test. The
// registry is returned even when the self-test finds nothing usable, so the
// caller can report per-device status; the caller must Close it.
func openHardware(ctx context.Context, cfg *config.Config, opts options, mqttClient *mqtt.Client, log *logging.Logger) (*hardware.Registry, error) {
	provider, err := openPins(opts.simulate)
	if err != nil {
		return nil, fmt.Errorf("opening GPIO: %w", err)
	}

	hwOpts := hardware.Options{
		QoS:    byte(cfg.MQTT.QoS),
		Logger: log.Component("hardware"),
	}
	if mqttClient != nil {
		hwOpts.Publisher = mqttClient
	}

	registry, err := hardware.Open(cfg.Hardware, provider, hwOpts)
	if err != nil {
		return nil, fmt.Errorf("opening hardware: %w", err)
	}
	if err := registry.SelfTest(ctx); err != nil {
		return registry, fmt.Errorf("hardware self-test: %w", err)
	}
	return registry, nil
}

// openSensor opens the configured sensors, or a looping scripted visitor in
// simulate mode.
func openSensor(cfg *config.Config, opts options) (rangefinder.Sensor, error) {
	bounds := rangefinder.BoundsFrom(cfg.Detection)
	if opts.simulate {
		return rangefinder.NewScripted("simulated", bounds, true, rangefinder.VisitorScript()...), nil
	}
	provider, err := openPins(false)
	if err != nil {
		return nil, err
	}
	return rangefinder.OpenAll(cfg.Hardware.Sensors, bounds, provider)
}

// buildSequence parses a configured sequence and logs each invalid action.
// Invalid actions stay in the sequence and are skipped at run time.
func buildSequence(name string, actions []config.ActionConfig, log *logging.Logger) sequence.Sequence {
	seq := sequence.Build(name, actions)
	for _, p := range seq.Problems() {
		log.Warn("invalid action will be skipped", "error", p)
	}
	log.Info("sequence loaded", "sequence", name, "actions", len(seq.Actions))
	return seq
}

// commandTarget is the part of the controller the command topic drives.
type commandTarget interface {
	Trigger(source string) (string, error)
	EmergencyStop(reason string) error
}

// subscribeCommands routes haunt/{site}/command to the controller.
func subscribeCommands(client *mqtt.Client, qos byte, ctrl commandTarget, log *logging.Logger) error {
	log.Info("subscribing to remote commands", "topic", client.Topics().Command())
	return client.SubscribeCommands(qos, commandFunc(ctrl, log))
}

// commandFunc executes one remote command.
func commandFunc(ctrl commandTarget, log *logging.Logger) mqtt.CommandFunc {
	return func(cmd mqtt.Command) error {
		switch cmd.Command {
		case mqtt.CommandTrigger:
			runID, err := ctrl.Trigger(sourceMQTT)
			if err != nil {
				log.Info("remote trigger refused", "source", cmd.Source, "error", err)
				return nil
			}
			log.Info("sequence triggered remotely", "source", cmd.Source, "run_id", runID)
		case mqtt.CommandEStop:
			if err := ctrl.EmergencyStop("mqtt: " + cmd.Source); err != nil {
				return fmt.Errorf("emergency stop: %w", err)
			}
		}
		return nil
	}
}
