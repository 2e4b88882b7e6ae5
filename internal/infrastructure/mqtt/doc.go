// Package mqtt provides MQTT client connectivity for Haunt Core.
//
// This package manages:
//   - The broker session, its presence announcements and offline will
//   - Controller events and the retained state snapshot
//   - The remote command topic, restored after every reconnect
//
// # Topics
//
// Every topic lives under haunt/{site}:
//
//	haunt/{site}/status         retained online/offline (LWT)
//	haunt/{site}/state          retained controller snapshot
//	haunt/{site}/event/{type}   state.changed, sequence.started, ...
//	haunt/{site}/command        {"command":"trigger"} or {"command":"estop"}
//
// The MQTT light driver publishes to its own configured topic.
//
// # Security Considerations
//
//   - Enable TLS when the broker is not on the local host (cfg.Broker.TLS=true)
//   - Anyone who can publish to the command topic can trigger the prop or
//     stop it; restrict it with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	events := mqtt.NewEventPublisher(client, client.Topics(), 1)
//	events.Broadcast("sequence.started", map[string]any{"run_id": id})
//
//	err = client.SubscribeCommands(1, func(cmd mqtt.Command) error {
//	    return handle(cmd)
//	})
package mqtt
