package mqtt

import (
	"encoding/json"
	"time"
)

// Publisher is the subset of Client used by EventPublisher.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Event is the envelope published for every controller event.
type Event struct {
	Type      string    `json:"type"`
	Site      string    `json:"site"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// EventPublisher forwards controller events to haunt/{site}/event/{type}.
// It satisfies the controller's Notifier interface.
type EventPublisher struct {
	pub    Publisher
	topics Topics
	qos    byte
	logger Logger
	now    func() time.Time
}

// NewEventPublisher creates a publisher for topics. Publish failures are
// logged, never returned, so a broker outage cannot stall the controller.
func NewEventPublisher(pub Publisher, topics Topics, qos byte) *EventPublisher {
	return &EventPublisher{pub: pub, topics: topics, qos: qos, now: time.Now}
}

// SetLogger sets the logger for publish failures.
func (e *EventPublisher) SetLogger(logger Logger) {
	e.logger = logger
}

// Broadcast publishes payload as an event of type channel.
func (e *EventPublisher) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Event{
		Type:      channel,
		Site:      e.topics.Site(),
		Timestamp: e.now().UTC(),
		Data:      payload,
	})
	if err != nil {
		e.warn("event encoding failed", "type", channel, "error", err)
		return
	}
	if err := e.pub.Publish(e.topics.Event(channel), data, e.qos, false); err != nil {
		e.warn("event publish failed", "type", channel, "error", err)
	}
}

// PublishState publishes a retained snapshot to haunt/{site}/state.
func (e *EventPublisher) PublishState(state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return e.pub.Publish(e.topics.State(), data, e.qos, true)
}

func (e *EventPublisher) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
