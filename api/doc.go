// Package api provides the HTTP REST layer of the Greenhouse Monitor server.
//
// The api package implements:
//   - Sensor and reading endpoints (historical queries, latest values,
//     single and batch ingestion)
//   - Actuator endpoints (listing, command issuing, state reporting)
//   - Health and WebSocket-client observability endpoints
//   - WebSocket upgrade mounting at /ws
//
// Endpoints:
//
// Sensors and readings:
//   - GET  /api/sensors                 - List sensors
//   - GET  /api/readings                - Historical readings (range, sensorId, sensorType, limit)
//   - POST /api/readings                - Record one reading
//   - GET  /api/readings/latest         - Latest reading per sensor
//   - POST /api/readings/batch          - Record a device's batch report
//
// Actuators:
//   - GET   /api/actuators              - List actuators with recent commands
//   - POST  /api/actuators/{id}/commands - Issue a command (pushed to devices)
//   - GET   /api/actuators/{id}/commands - Command history (limit, default 20)
//   - GET   /api/actuators/{id}/status  - Actuator state and latest command
//   - PATCH /api/actuators/{id}/status  - Device reports observed state
//
// Observability:
//   - GET /api/health                   - Database health
//   - GET /api/ws/clients               - Connected WebSocket sessions
//
// Request/Response Format:
//
// All endpoints accept and return JSON wrapped in a common envelope:
//
//	{
//	  "success": true,
//	  "data": ...,
//	  "count": 5,
//	  "error": "only on failure",
//	  "message": "optional human-readable note"
//	}
//
// The ws/clients endpoint additionally reports esp8266Connected and
// webClientsCount beside the envelope fields.
//
// Issuing a command returns a delivered flag inside data; when it is false
// the message warns that no device is online. The command is persisted
// either way.
package api
