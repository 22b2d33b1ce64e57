// Package websocket implements the real-time message-routing hub of the
// Greenhouse Monitor server.
//
// The hub bridges two kinds of clients over persistent WebSocket
// connections: embedded sensor/actuator devices (ESP8266 firmware) and
// browser dashboards. Devices push sensor readings, actuator status and
// command acknowledgments; the hub relays them to every connected dashboard.
// Commands travel the other direction, injected by the HTTP layer through
// the dispatch methods rather than over a socket.
//
// Connection Lifecycle:
//
//  1. Client connects to /ws and receives a connected message with its id
//  2. Client announces its type with an auth message (esp8266/device or
//     web/dashboard) and receives auth_success
//  3. Device messages are routed and fanned out to dashboards, each
//     acknowledged back to the sender
//  4. Disconnection or a read error removes the session from the registry
//
// A session that sends role-restricted messages before authenticating gets
// an error reply and stays connected.
//
// Message Protocol:
//
// Messages are JSON envelopes of the form
//
//	{type: "sensor_reading", data: {...}, timestamp: "2026-01-02T15:04:05Z"}
//
// with type selecting the route. See message.go for the full set.
//
// Concurrency:
//
// Each connection is served by one read goroutine and one write goroutine.
// Outbound delivery goes through a buffered per-client queue and is
// best-effort: a slow dashboard is skipped during fan-out instead of
// stalling delivery to the others. The registry is the only shared state
// and is guarded by a single mutex.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	router.HandleFunc("/ws", hub.ServeWS)
//
//	// from the HTTP layer, after persisting a command:
//	delivered := hub.DispatchCommandToDevices(cmd)
package websocket
