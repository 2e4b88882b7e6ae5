package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
)

const (
	connectTimeout      = 10 * time.Second
	publishTimeout      = 5 * time.Second
	disconnectQuiesceMS = 1000
	keepAlive           = 60 * time.Second
	maxQoS              = 2
)

// Presence values on haunt/{site}/status.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"

	reasonShutdown = "graceful_shutdown"
	reasonCrash    = "unexpected_disconnect"
)

// Presence is the retained payload on the status topic.
type Presence struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func presencePayload(status, clientID, reason string, at time.Time) []byte {
	// A struct of strings and a time always encodes.
	data, _ := json.Marshal(Presence{ //nolint:errcheck
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: at.UTC().Truncate(time.Second),
	})
	return data
}

// brokerURL is tcp://host:port, or ssl:// with TLS.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// clientOptions builds a clean, auto-reconnecting session whose will marks
// the site offline on haunt/{site}/status.
func clientOptions(cfg config.MQTTConfig, topics Topics, now time.Time) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if d := cfg.Reconnect.InitialDelay.Std(); d > 0 {
		opts.SetConnectRetryInterval(d)
	}
	if d := cfg.Reconnect.MaxDelay.Std(); d > 0 {
		opts.SetMaxReconnectInterval(d)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	will := presencePayload(PresenceOffline, cfg.Broker.ClientID, reasonCrash, now)
	opts.SetBinaryWill(topics.Status(), will, 1, true)
	return opts
}
