package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
)

const testBroker = "127.0.0.1:1883"

// testConfig returns a valid MQTT configuration for testing.
// Broker tests require a running Mosquitto at 127.0.0.1:1883 and skip otherwise.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "haunt-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: config.Duration(time.Second),
			MaxDelay:     config.Duration(5 * time.Second),
		},
	}
}

// connectOrSkip connects with clientID, skipping the test when no broker listens.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBroker, 200*time.Millisecond)
	if err != nil {
		t.Skipf("MQTT broker not available at %s, skipping", testBroker)
	}
	conn.Close()

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg, "test")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Session Options (no broker needed)
// =============================================================================

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name   string
		broker config.MQTTBrokerConfig
		want   string
	}{
		{"plain", config.MQTTBrokerConfig{Host: "broker.local", Port: 1883}, "tcp://broker.local:1883"},
		{"tls", config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true}, "ssl://broker.local:8883"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := brokerURL(tt.broker); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "prop", Password: "boo"}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	at := time.Date(2025, 10, 31, 21, 0, 0, 0, time.UTC)

	opts := clientOptions(cfg, NewTopics("porch"), at)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v, want [ssl://127.0.0.1:8883]", opts.Servers)
	}
	if opts.ClientID != "haunt-test" || opts.Username != "prop" || opts.Password != "boo" {
		t.Errorf("identity = %q/%q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("want a clean, auto-reconnecting session")
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil with TLS enabled")
	}
	if !opts.WillEnabled || opts.WillTopic != "haunt/porch/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %v %q retained=%v qos=%d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}

	var will Presence
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	want := Presence{Status: PresenceOffline, ClientID: "haunt-test", Reason: reasonCrash, Timestamp: at}
	if !will.Timestamp.Equal(want.Timestamp) || will.Status != want.Status || will.Reason != want.Reason || will.ClientID != want.ClientID {
		t.Errorf("will = %+v, want %+v", will, want)
	}
}

func TestPresencePayload_OmitsEmptyReason(t *testing.T) {
	payload := presencePayload(PresenceOnline, "haunt-1", "", time.Date(2025, 10, 31, 21, 0, 0, 0, time.UTC))

	want := `{"status":"online","client_id":"haunt-1","timestamp":"2025-10-31T21:00:00Z"}`
	if string(payload) != want {
		t.Errorf("presencePayload() = %s, want %s", payload, want)
	}
}

// =============================================================================
// Disconnected Client (no broker needed)
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for an unconnected client")
	}
}

func TestHealthCheck(t *testing.T) {
	client := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "t", qos: 3, wantErr: ErrInvalidQoS},
		{name: "payload too large", topic: "t", qos: 1, payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
		{name: "not connected", topic: "t", qos: 1, wantErr: ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeCommandsValidation(t *testing.T) {
	client := &Client{topics: NewTopics("porch")}
	fn := func(Command) error { return nil }

	if err := client.SubscribeCommands(1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("SubscribeCommands(nil) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.SubscribeCommands(3, fn); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("SubscribeCommands(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.SubscribeCommands(1, fn); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeCommands(disconnected) error = %v, want ErrNotConnected", err)
	}
	if client.commands != nil {
		t.Error("failed SubscribeCommands left a command route behind")
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestCommandHandler(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)

	var got []Command
	handler := client.commandHandler(func(cmd Command) error {
		got = append(got, cmd)
		switch cmd.Source {
		case "broken":
			return errors.New("refused")
		case "explosive":
			panic("boom")
		}
		return nil
	})

	topic := "haunt/porch/command"
	handler(nil, fakeMessage{topic: topic, payload: []byte("estop")})
	handler(nil, fakeMessage{topic: topic, payload: []byte("nope")})
	handler(nil, fakeMessage{topic: topic, payload: []byte(`{"command":"trigger","source":"broken"}`)})
	handler(nil, fakeMessage{topic: topic, payload: []byte(`{"command":"trigger","source":"explosive"}`)})

	if len(got) != 3 || got[0].Command != CommandEStop || got[0].Source != "mqtt" {
		t.Errorf("handled = %+v, want estop then two triggers", got)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 2 {
		t.Errorf("warnings = %v, want unparseable and failed command", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want the recovered panic", logger.errors)
	}
}

// =============================================================================
// Broker Round Trips
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t, "haunt-test-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if got := client.Topics().Status(); got != "haunt/test/status" {
		t.Errorf("Topics().Status() = %q, want haunt/test/status", got)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t, "haunt-test-close")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.Publish(client.Topics().State(), []byte("{}"), 1, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestCommandRoundtrip(t *testing.T) {
	pub := connectOrSkip(t, "haunt-test-cmd-pub")
	sub := connectOrSkip(t, "haunt-test-cmd-sub")

	var mu sync.Mutex
	var got []Command
	done := make(chan struct{}, 2)

	if err := sub.SubscribeCommands(1, func(cmd Command) error {
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("SubscribeCommands() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	topic := pub.Topics().Command()
	_ = pub.Publish(topic, []byte("bogus"), 1, false)
	_ = pub.Publish(topic, []byte(`{"command":"trigger","source":"dashboard"}`), 1, false)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("command not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Command != CommandTrigger || got[0].Source != "dashboard" {
		t.Errorf("commands = %+v, want one trigger from dashboard", got)
	}
}
