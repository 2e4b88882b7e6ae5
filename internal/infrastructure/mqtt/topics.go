package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the controller uses.
const TopicPrefix = "haunt"

// DefaultSite is used when no site ID is configured.
const DefaultSite = "default"

// Topics builds topic names for one installation.
//
//	topics := mqtt.NewTopics("porch")
//	topics.Event("sequence.started")
//	// Returns: "haunt/porch/event/sequence.started"
type Topics struct {
	site string
}

// NewTopics returns builders for site. MQTT wildcard and separator
// characters in the ID are replaced with '-'.
func NewTopics(site string) Topics {
	site = strings.TrimSpace(site)
	if site == "" {
		site = DefaultSite
	}
	site = strings.NewReplacer("/", "-", "+", "-", "#", "-").Replace(site)
	return Topics{site: site}
}

// Site returns the sanitised site ID.
func (t Topics) Site() string {
	if t.site == "" {
		return DefaultSite
	}
	return t.site
}

// Base returns haunt/{site}.
func (t Topics) Base() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.Site())
}

// Status returns the retained online/offline topic (also the LWT topic).
//
// Example: haunt/porch/status
func (t Topics) Status() string {
	return t.Base() + "/status"
}

// State returns the retained controller snapshot topic.
//
// Example: haunt/porch/state
func (t Topics) State() string {
	return t.Base() + "/state"
}

// Event returns the topic for one event type.
//
// Example: haunt/porch/event/sensor.fault
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", t.Base(), kind)
}

// Command returns the topic remote commands arrive on.
//
// Example: haunt/porch/command
func (t Topics) Command() string {
	return t.Base() + "/command"
}
