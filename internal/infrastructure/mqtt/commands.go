package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Remote commands accepted on haunt/{site}/command.
const (
	CommandTrigger = "trigger"
	CommandEStop   = "estop"
)

// Command is a remote control request.
//
//	{"command":"trigger","source":"dashboard"}
type Command struct {
	Command string `json:"command"`
	Source  string `json:"source,omitempty"`
}

// ParseCommand decodes a command payload. A bare word ("trigger") is
// accepted as well as the JSON form.
func ParseCommand(payload []byte) (Command, error) {
	text := strings.TrimSpace(string(payload))
	var cmd Command
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
	} else {
		cmd.Command = text
	}

	cmd.Command = strings.ToLower(strings.TrimSpace(cmd.Command))
	switch cmd.Command {
	case CommandTrigger, CommandEStop:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.Command)
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}
	return cmd, nil
}

// CommandFunc executes one remote command. A returned error is logged.
type CommandFunc func(Command) error

// commandRoute is the live subscription on the command topic.
type commandRoute struct {
	qos byte
	fn  CommandFunc
}

// SubscribeCommands routes haunt/{site}/command to fn. Payloads that do not
// parse are logged and dropped. Calling it again replaces fn.
func (c *Client) SubscribeCommands(qos byte, fn CommandFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: nil command func", ErrSubscribeFailed)
	}
	topic := c.topics.Command()
	if err := checkRequest(topic, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := await(c.paho.Subscribe(topic, qos, c.commandHandler(fn)), publishTimeout, ErrSubscribeFailed); err != nil {
		return err
	}

	c.mu.Lock()
	c.commands = &commandRoute{qos: qos, fn: fn}
	c.mu.Unlock()
	return nil
}

// commandHandler parses each message and calls fn. A panic in fn is
// recovered and logged so the paho router keeps running.
func (c *Client) commandHandler(fn CommandFunc) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT command handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		cmd, err := ParseCommand(msg.Payload())
		if err != nil {
			c.logWarn("ignoring remote command", "topic", msg.Topic(), "error", err)
			return
		}
		if err := fn(cmd); err != nil {
			c.logWarn("remote command failed", "command", cmd.Command, "source", cmd.Source, "error", err)
		}
	}
}
