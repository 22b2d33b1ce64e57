// Package service provides the business logic layer of the Greenhouse
// Monitor server.
//
// MonitorService is the main interface, sitting between the HTTP transport
// and the store. It owns the rules the transports share: reading time-range
// parsing, sensor resolution for batch reports, actuator state derivation
// from commands (servo OPEN/CLOSE/ANGLE, relay ON/OFF), and command
// lifecycle tracking (queued, sent, ack).
//
// Real-time delivery goes through the Notifier interface, implemented by
// the WebSocket hub. Persisting a record and pushing it to live sessions
// are deliberately decoupled: the push is best-effort and its failure never
// fails the request, since the durable record already exists. IssueCommand
// surfaces the delivered flag so the API can warn when no device is online.
//
// Usage:
//
//	st, _ := store.NewSQLiteStore("greenhouse.db")
//	hub := websocket.NewHub(logger)
//	svc := service.NewMonitorService(st, hub, logger)
package service
