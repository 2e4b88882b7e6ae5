package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/haunt-core/internal/controller"
	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/logging"
	"github.com/nerrad567/haunt-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/haunt-core/internal/rangefinder"
)

// simulatedConfig is a minimal installation: one relay, a motor, no light
// or audio, history enabled, MQTT and API disabled.
const simulatedConfig = `
site:
  id: test-site

logging:
  level: error
  format: text

detection:
  reading_interval: 10ms
  cooldown_duration: 50ms
  max_sequence_duration: 5s

hardware:
  sensors:
    - name: front
      type: ultrasonic
      trigger_pin: 23
      echo_pin: 24
  motor:
    enabled: true
    forward_pin: 17
    reverse_pin: 27
    max_move: 1s
  relays:
    - name: smoke
      pin: 22

sequences:
  setup:
    - type: relay
      device: smoke
      state: "off"
  trigger:
    - type: relay
      device: smoke
      state: "on"
    - type: sleep
      duration: 20ms
    - type: relay
      device: smoke
      state: "off"

database:
  enabled: true
  path: %DB%
`

func writeConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "haunt.db")
	configPath = filepath.Join(dir, "config.yaml")
	content := strings.ReplaceAll(simulatedConfig, "%DB%", dbPath)
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath, dbPath
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("HAUNT_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("HAUNT_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: "/nonexistent/path/config.yaml"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_SimulatedStartupAndShutdown runs the whole loop on simulated pins
// and checks that the setup run reached the history database.
func TestRun_SimulatedStartupAndShutdown(t *testing.T) {
	configPath, dbPath := writeConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx, options{configPath: configPath, simulate: true}); err != nil {
		t.Fatalf("run() error: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM run_history WHERE source = ?`, controller.SourceStartup).Scan(&n); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if n != 1 {
		t.Errorf("startup runs = %d, want 1", n)
	}
}

func TestSelftest_Simulated(t *testing.T) {
	configPath, _ := writeConfig(t)
	var out bytes.Buffer

	err := selftest(context.Background(), options{configPath: configPath, simulate: true}, &out)
	if err != nil {
		t.Fatalf("selftest() error: %v\n%s", err, out.String())
	}
	for _, want := range []string{"actuator", "smoke", "valid readings"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestCheckSensor(t *testing.T) {
	bounds := rangefinder.Bounds{Min: 2, Max: 400}
	tests := []struct {
		name     string
		readings []float64
		want     int
		wantErr  bool
	}{
		{"all valid", []float64{100, 101, 99, 100, 100}, 5, false},
		{"exactly sixty percent", []float64{100, 500, 100, 1, 100}, 3, false},
		{"too few valid", []float64{100, 500, 500, 1, 100}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor := rangefinder.NewScripted("test", bounds, false, tt.readings...)
			var out bytes.Buffer

			got, err := checkSensor(context.Background(), sensor, len(tt.readings), 0, &out)
			if got != tt.want {
				t.Errorf("valid = %d, want %d", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("checkSensor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errSensorCheck) {
				t.Errorf("error = %v, want errSensorCheck", err)
			}
		})
	}
}

type fakeTarget struct {
	triggers []string
	stops    []string
	err      error
}

func (f *fakeTarget) Trigger(source string) (string, error) {
	f.triggers = append(f.triggers, source)
	return "run-1", f.err
}

func (f *fakeTarget) EmergencyStop(reason string) error {
	f.stops = append(f.stops, reason)
	return f.err
}

func TestCommandFunc(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	target := &fakeTarget{}
	fn := commandFunc(target, log)

	if err := fn(mqtt.Command{Command: mqtt.CommandTrigger, Source: "dashboard"}); err != nil {
		t.Errorf("trigger error: %v", err)
	}
	if err := fn(mqtt.Command{Command: mqtt.CommandEStop, Source: "dashboard"}); err != nil {
		t.Errorf("estop error: %v", err)
	}
	if len(target.triggers) != 1 || target.triggers[0] != sourceMQTT {
		t.Errorf("triggers = %v, want [%s]", target.triggers, sourceMQTT)
	}
	if len(target.stops) != 1 || target.stops[0] != "mqtt: dashboard" {
		t.Errorf("stops = %v, want [mqtt: dashboard]", target.stops)
	}

	// A refused trigger is not an error; a failed safe state is.
	target.err = controller.ErrBusy
	if err := fn(mqtt.Command{Command: mqtt.CommandTrigger}); err != nil {
		t.Errorf("refused trigger error = %v, want nil", err)
	}
	target.err = errors.New("relay smoke: write failed")
	if err := fn(mqtt.Command{Command: mqtt.CommandEStop}); err == nil {
		t.Error("failed estop error = nil, want error")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "haunt "+version) {
		t.Errorf("output = %q, want haunt %s prefix", out.String(), version)
	}
}
