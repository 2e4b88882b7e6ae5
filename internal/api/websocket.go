package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket opens a live feed. ?channels=a,b pre-subscribes; an
// unknown channel is rejected before the upgrade. The first frame is a
// welcome carrying the channel list and the controller status.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	channels, err := checkChannels(strings.Split(r.URL.Query().Get("channels"), ","))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newFeedClient(conn, channels...)
	c.reply(Frame{Type: FrameWelcome, Channels: FeedChannels, Data: s.controller.Status()})
	s.hub.add(c)

	go s.writeFeed(c)
	go s.readFeed(c)
}

// readFeed handles client frames until the connection fails.
func (s *Server) readFeed(c *feedClient) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
	}()

	ping, pong := wsTimings(s.wsCfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	c.conn.SetReadLimit(s.wsCfg.MaxMessageSize)
	extend() //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay alive by talking.
		extend() //nolint:errcheck // read error surfaces above
		s.handleFrame(c, data)
	}
}

// writeFeed drains the client's queue and pings on an interval.
func (s *Server) writeFeed(c *feedClient) {
	ping, pong := wsTimings(s.wsCfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // write error surfaces below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (s *Server) handleFrame(c *feedClient, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.reply(Frame{Type: FrameError, Error: "invalid JSON frame"})
		return
	}

	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe:
		names, err := checkChannels(f.Channels)
		if err != nil {
			c.reply(Frame{Type: FrameError, ID: f.ID, Error: err.Error()})
			return
		}
		if len(names) == 0 {
			c.reply(Frame{Type: FrameError, ID: f.ID, Error: "no channels given"})
			return
		}
		subscribed := c.update(f.Type == FrameSubscribe, names)
		s.logger.Debug("feed subscription changed", "type", f.Type, "channels", names)
		c.reply(Frame{Type: FrameAck, ID: f.ID, Channels: subscribed})
	case FrameStatus:
		c.reply(Frame{Type: FrameStatus, ID: f.ID, Data: s.controller.Status()})
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: f.ID})
	default:
		c.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown frame type: " + f.Type})
	}
}

// wsTimings returns the ping interval and pong wait, falling back to 30s
// and 10s when unset.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = cfg.PingInterval.Std(), cfg.PongTimeout.Std()
	if ping <= 0 {
		ping = 30 * time.Second
	}
	if pong <= 0 {
		pong = 10 * time.Second
	}
	return ping, pong
}
