// Package api provides the HTTP control API and the WebSocket event stream.
//
// Routes:
//
//	GET  /api/v1/health     component health
//	GET  /api/v1/status     controller phase, detector state, last run
//	GET  /api/v1/devices    hardware availability after self-test
//	GET  /api/v1/runs       activation history (database.enabled)
//	GET  /api/v1/runs/{id}  one run
//	POST /api/v1/trigger    start the trigger sequence
//	POST /api/v1/estop      emergency stop
//	GET  /ws                WebSocket event stream
//
// The Hub implements the controller's Notifier, so every controller and
// sequence event is forwarded to WebSocket clients subscribed to its
// channel ("*" subscribes to all). A client first receives a welcome
// frame with the channel list and the controller status.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
