package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/haunt-core/internal/controller"
	"github.com/nerrad567/haunt-core/internal/infrastructure/logging"
	"github.com/nerrad567/haunt-core/internal/sequence"
)

// Frame types on the live feed.
const (
	FrameWelcome     = "welcome"
	FrameEvent       = "event"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameAck         = "ack"
	FrameStatus      = "status"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameError       = "error"
)

// ChannelAll subscribes a client to every channel.
const ChannelAll = "*"

// feedBuffer is the per-client outbound frame buffer. A client that falls
// further behind loses events rather than stalling the controller.
const feedBuffer = 256

// FeedChannels lists the channels a client may subscribe to.
var FeedChannels = []string{
	controller.EventStateChanged,
	controller.EventPhaseChanged,
	controller.EventSequenceStarted,
	sequence.EventAction,
	controller.EventSequenceFinished,
	controller.EventSensorFault,
	controller.EventSensorRecovered,
	controller.EventEmergencyStop,
}

// Frame is one JSON message on the feed, in either direction. Clients send
// subscribe, unsubscribe, status and ping; the server sends the rest.
type Frame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Time     string   `json:"time,omitempty"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func stamp(f Frame) ([]byte, error) {
	f.Time = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(f)
}

// checkChannels trims names, drops empties and rejects anything not in
// FeedChannels.
func checkChannels(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n != ChannelAll && !knownChannel(n) {
			return nil, fmt.Errorf("unknown channel %q", n)
		}
		out = append(out, n)
	}
	return out, nil
}

func knownChannel(name string) bool {
	for _, ch := range FeedChannels {
		if ch == name {
			return true
		}
	}
	return false
}

// feedClient is one WebSocket subscriber. out is closed exactly once, under
// mu, so no send can race the close.
type feedClient struct {
	conn *websocket.Conn

	mu       sync.Mutex
	out      chan []byte
	closed   bool
	channels map[string]struct{}
	dropped  int
}

func newFeedClient(conn *websocket.Conn, channels ...string) *feedClient {
	c := &feedClient{
		conn:     conn,
		out:      make(chan []byte, feedBuffer),
		channels: make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	return c
}

// wants reports whether channel is subscribed, directly or through "*".
// Caller holds mu.
func (c *feedClient) wants(channel string) bool {
	if _, ok := c.channels[ChannelAll]; ok {
		return true
	}
	_, ok := c.channels[channel]
	return ok
}

// deliver queues an event frame if the client wants its channel.
func (c *feedClient) deliver(channel string, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.wants(channel) {
		return false
	}
	return c.enqueueLocked(data)
}

// reply queues a control frame regardless of subscriptions.
func (c *feedClient) reply(f Frame) {
	data, err := stamp(f)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.enqueueLocked(data)
	}
}

func (c *feedClient) enqueueLocked(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		c.dropped++
		return false
	}
}

// update adds or removes channels and returns the resulting subscription.
func (c *feedClient) update(add bool, names []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		if add {
			c.channels[n] = struct{}{}
		} else {
			delete(c.channels, n)
		}
	}
	subscribed := make([]string, 0, len(c.channels))
	for _, ch := range append([]string{ChannelAll}, FeedChannels...) {
		if _, ok := c.channels[ch]; ok {
			subscribed = append(subscribed, ch)
		}
	}
	return subscribed
}

// shutdown closes out once. It reports how many frames were dropped.
func (c *feedClient) shutdown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	return c.dropped
}

// Hub fans controller and sequence events out to feed clients. It satisfies
// sequence.Notifier and can be handed to the controller before the server
// starts.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed client connected", "clients", n)
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if dropped := c.shutdown(); dropped > 0 {
		h.logger.Warn("feed client fell behind", "dropped", dropped)
	}
	h.logger.Debug("feed client disconnected", "clients", n)
}

// Broadcast implements sequence.Notifier. The frame is encoded once and
// queued for every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := stamp(Frame{Type: FrameEvent, Channel: channel, Data: payload})
	if err != nil {
		h.logger.Error("encoding feed event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.clients {
		if c.deliver(channel, data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("feed event sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
