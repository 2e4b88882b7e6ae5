package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
)

// maxPayloadSize caps a single publish.
const maxPayloadSize = 1 << 20

// Logger is the logging the client needs. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the controller's broker session for one site.
//
// It announces presence on haunt/{site}/status (with a retained will for
// crashes), publishes events, state and MQTT light commands, and routes
// haunt/{site}/command to a CommandFunc. The command route is restored after
// every reconnect because sessions are clean.
//
// All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu           sync.RWMutex
	up           bool
	commands     *commandRoute
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect opens a session and waits for the broker to accept it.
//
// Parameters:
//   - cfg: the mqtt section of the configuration
//   - site: installation ID used in every topic
//
// Returns:
//   - *Client: connected client; presence is announced once paho reports the
//     connection
//   - error: wraps ErrConnectionFailed if the broker does not accept the
//     session within connectTimeout
func Connect(cfg config.MQTTConfig, site string) (*Client, error) {
	c := &Client{cfg: cfg, topics: NewTopics(site)}

	opts := clientOptions(cfg, c.topics, time.Now())
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logWarn("MQTT reconnecting", "broker", cfg.Broker.Host)
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}
	// The connect handler runs asynchronously; report connected from here on.
	c.setUp(true)
	return c, nil
}

// connected runs on the first connection and every reconnect.
func (c *Client) connected() {
	c.setUp(true)

	c.mu.RLock()
	route := c.commands
	callback := c.onConnect
	c.mu.RUnlock()

	if route != nil {
		c.paho.Subscribe(c.topics.Command(), route.qos, c.commandHandler(route.fn))
	}
	c.announce(PresenceOnline, "")
	if callback != nil {
		callback()
	}
}

func (c *Client) lost(err error) {
	c.setUp(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) setUp(up bool) {
	c.mu.Lock()
	c.up = up
	c.mu.Unlock()
}

// announce publishes a retained presence message without waiting.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	payload := presencePayload(status, c.cfg.Broker.ClientID, reason, time.Now())
	return c.paho.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful shutdown and disconnects. It is a no-op on a
// client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		// Best effort: the will still marks the site offline if this is lost.
		c.announce(PresenceOffline, reasonShutdown).WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMS)
	c.setUp(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.up && c.paho != nil && c.paho.IsConnected()
}

// Topics returns the topic builder for the client's site.
func (c *Client) Topics() Topics {
	return c.topics
}

// Publish sends payload to topic. Events, the state snapshot and the MQTT
// light all go through here.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkRequest(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), publishTimeout, ErrPublishFailed)
}

// SetOnConnect sets a callback for every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback for a lost connection.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets where handler failures and reconnects are logged.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Error(msg, args...)
	}
}

// checkRequest validates a topic and QoS before they reach paho.
func checkRequest(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await waits for a paho token and wraps failures in sentinel.
func await(tok pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
