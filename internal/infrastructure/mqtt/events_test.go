package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return nil
}

func TestTopics(t *testing.T) {
	topics := NewTopics("porch")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Base", topics.Base(), "haunt/porch"},
		{"Status", topics.Status(), "haunt/porch/status"},
		{"State", topics.State(), "haunt/porch/state"},
		{"Event", topics.Event("sequence.started"), "haunt/porch/event/sequence.started"},
		{"Command", topics.Command(), "haunt/porch/command"},
		{"empty site", NewTopics("  ").Status(), "haunt/default/status"},
		{"zero value", Topics{}.Command(), "haunt/default/command"},
		{"sanitised", NewTopics("yard/+#").Base(), "haunt/yard---"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestEventPublisher_Broadcast(t *testing.T) {
	pub := &fakePublisher{}
	events := NewEventPublisher(pub, NewTopics("porch"), 1)
	events.now = func() time.Time { return time.Date(2025, 10, 31, 21, 0, 0, 0, time.UTC) }

	events.Broadcast("sequence.finished", map[string]any{"status": "completed"})

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "haunt/porch/event/sequence.finished" || msg.retained || msg.qos != 1 {
		t.Errorf("message = %+v", msg)
	}
	var got struct {
		Type      string         `json:"type"`
		Site      string         `json:"site"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.Type != "sequence.finished" || got.Site != "porch" || got.Data["status"] != "completed" {
		t.Errorf("event = %+v", got)
	}
	if got.Timestamp != "2025-10-31T21:00:00Z" {
		t.Errorf("timestamp = %q", got.Timestamp)
	}
}

func TestEventPublisher_FailuresAreLogged(t *testing.T) {
	pub := &fakePublisher{err: ErrNotConnected}
	logger := &recordingLogger{}
	events := NewEventPublisher(pub, NewTopics("porch"), 0)
	events.SetLogger(logger)

	events.Broadcast("sensor.fault", nil)
	events.Broadcast("bad", func() {})

	if len(logger.warns) != 2 {
		t.Errorf("warnings = %v, want publish and encoding failures", logger.warns)
	}
}

func TestEventPublisher_PublishState(t *testing.T) {
	pub := &fakePublisher{}
	events := NewEventPublisher(pub, NewTopics("porch"), 1)

	if err := events.PublishState(map[string]string{"phase": "idle"}); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}
	if pub.msgs[0].topic != "haunt/porch/state" || !pub.msgs[0].retained {
		t.Errorf("state message = %+v, want retained on state topic", pub.msgs[0])
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload    string
		want       Command
		wantErr    bool
		wantSource string
	}{
		{payload: `{"command":"trigger"}`, want: Command{Command: "trigger", Source: "mqtt"}},
		{payload: `{"command":"ESTOP","source":"panel"}`, want: Command{Command: "estop", Source: "panel"}},
		{payload: " trigger\n", want: Command{Command: "trigger", Source: "mqtt"}},
		{payload: `{"command":"dance"}`, wantErr: true},
		{payload: `{"command":`, wantErr: true},
		{payload: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("ParseCommand() error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
