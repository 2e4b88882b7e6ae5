package hardware

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the part of the MQTT client the light needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MQTTLight sends JSON light commands to a topic, in the
// {"state":"ON","color":{"r":..,"g":..,"b":..}} shape most bridges accept.
type MQTTLight struct {
	publisher Publisher
	topic     string
	qos       byte
}

// NewMQTTLight returns a transport publishing to topic.
func NewMQTTLight(p Publisher, topic string, qos byte) *MQTTLight {
	return &MQTTLight{publisher: p, topic: topic, qos: qos}
}

type mqttLightCommand struct {
	State string `json:"state"`
	Color *Color `json:"color,omitempty"`
}

// Power publishes an ON/OFF command.
func (m *MQTTLight) Power(_ context.Context, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return m.publish(mqttLightCommand{State: state})
}

// Color publishes an ON command with a colour.
func (m *MQTTLight) Color(_ context.Context, c Color) error {
	return m.publish(mqttLightCommand{State: "ON", Color: &c})
}

// Ping reports whether the broker connection is up.
func (m *MQTTLight) Ping(context.Context) error {
	if !m.publisher.IsConnected() {
		return fmt.Errorf("%w: mqtt broker not connected", ErrLightUnreachable)
	}
	return nil
}

func (m *MQTTLight) publish(cmd mqttLightCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := m.publisher.Publish(m.topic, payload, m.qos, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", m.topic, err)
	}
	return nil
}
