package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// TODO: Configure this for production
		return true
	},
}

// Hub is the message-routing core. It owns the registry of live sessions,
// routes inbound frames by message type, and fans device-originated messages
// out to dashboard sessions and vice versa.
//
// A Hub carries no package-level state; independent hubs can coexist, which
// the tests rely on.
type Hub struct {
	logger zerolog.Logger

	// mu guards clients and the role/clientType/deviceID fields of every
	// registered Client. Registry mutation and fan-out snapshots are
	// mutually exclusive so a fan-out never sees a half-removed session.
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "ws_hub").Logger(),
		clients: make(map[string]*Client),
	}
}

// ServeWS upgrades an HTTP request to a WebSocket session. The new session
// starts unauthenticated, is inserted into the registry, and is greeted with
// a connected message carrying its session id. Upgrade failures are handled
// at the transport level and never surface as application errors.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		id:          uuid.NewString(),
		remoteAddr:  r.RemoteAddr,
		connectedAt: time.Now().UTC(),
	}

	h.register(client)

	client.enqueue(Message{
		Type:      TypeConnected,
		ClientID:  client.id,
		Timestamp: nowISO(),
		Message:   "Connected to Greenhouse Monitor WebSocket Server",
	})

	go client.writePump()
	go client.readPump()
}

// register inserts a session into the registry.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", c.id).
		Str("remote_addr", c.remoteAddr).
		Int("total_clients", total).
		Msg("client connected")
}

// unregister removes a session from the registry and signals its write pump
// to exit. The send channel itself is never closed: a fan-out that grabbed
// its snapshot just before removal may still attempt an enqueue, which must
// fall through silently rather than panic. Safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	if present {
		delete(h.clients, c.id)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	close(c.done)

	h.logger.Info().
		Str("client_id", c.id).
		Int("total_clients", total).
		Msg("client disconnected")
}

// clientsByRole returns a snapshot of all sessions currently holding role.
// The returned slice is a copy; concurrent registry mutation cannot corrupt
// a caller iterating it.
func (h *Hub) clientsByRole(role Role) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for _, c := range h.clients {
		if c.role == role {
			out = append(out, c)
		}
	}
	return out
}

// ClientList reports a snapshot of every live session for observability
// endpoints.
func (h *Hub) ClientList() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, ClientInfo{
			ID:          c.id,
			Type:        c.clientType,
			Role:        c.role,
			DeviceID:    c.deviceID,
			RemoteAddr:  c.remoteAddr,
			ConnectedAt: c.connectedAt,
		})
	}
	return out
}

// route decodes one inbound frame from c and dispatches it by message type.
// Protocol errors (bad JSON, unknown type, role violations) are answered
// with an error envelope; the connection stays open.
func (h *Hub) route(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Warn().Err(err).Str("client_id", c.id).Msg("failed to parse message")
		c.sendError("Invalid JSON format")
		return
	}

	h.logger.Debug().Str("client_id", c.id).Str("type", env.Type).Msg("message received")

	switch env.Type {
	case TypeAuth:
		h.handleAuth(c, env.Data)

	case TypeSensorReading:
		h.handleSensorReading(c, env.Data)

	case TypeActuatorStatus:
		h.handleActuatorStatus(c, env.Data)

	case TypeCommandAck:
		h.handleCommandAck(c, env.Data)

	case TypePing:
		c.enqueue(Message{Type: TypePong, Timestamp: nowISO()})

	default:
		h.logger.Warn().Str("client_id", c.id).Str("type", env.Type).Msg("unknown message type")
		c.sendError("Unknown message type: " + env.Type)
	}
}

// handleAuth runs the session's role transition. A valid client type moves
// the session to the matching role; anything else leaves it unauthenticated.
// A repeated auth overwrites the previous role and device id.
func (h *Hub) handleAuth(c *Client, data json.RawMessage) {
	var auth AuthData
	if len(data) > 0 {
		// A malformed payload is treated the same as a missing one.
		json.Unmarshal(data, &auth)
	}

	role := roleForClientType(auth.ClientType)
	if role == RoleUnset {
		c.sendError("Invalid client type")
		return
	}

	h.mu.Lock()
	c.role = role
	c.clientType = auth.ClientType
	c.deviceID = auth.DeviceID
	h.mu.Unlock()

	c.enqueue(Message{
		Type:       TypeAuthSuccess,
		ClientID:   c.id,
		ClientType: auth.ClientType,
		Timestamp:  nowISO(),
	})

	h.logger.Info().
		Str("client_id", c.id).
		Str("client_type", auth.ClientType).
		Str("device_id", auth.DeviceID).
		Msg("client authenticated")
}

// handleSensorReading relays a device's sensor reading to every dashboard
// session and acknowledges the sender.
func (h *Hub) handleSensorReading(c *Client, data json.RawMessage) {
	if !h.hasRole(c, RoleDevice) {
		c.sendError("Only ESP8266 can send sensor readings")
		return
	}

	delivered := h.broadcastToRole(RoleDashboard, Message{
		Type:      TypeSensorReading,
		Data:      data,
		Timestamp: nowISO(),
	})
	h.logger.Debug().Str("client_id", c.id).Int("delivered", delivered).Msg("sensor reading relayed")

	c.enqueue(Message{Type: TypeSensorReadingAck, Timestamp: nowISO()})
}

// handleActuatorStatus relays a device's actuator status to every dashboard
// session and acknowledges the sender.
func (h *Hub) handleActuatorStatus(c *Client, data json.RawMessage) {
	if !h.hasRole(c, RoleDevice) {
		c.sendError("Only ESP8266 can send actuator status")
		return
	}

	delivered := h.broadcastToRole(RoleDashboard, Message{
		Type:      TypeActuatorStatus,
		Data:      data,
		Timestamp: nowISO(),
	})
	h.logger.Debug().Str("client_id", c.id).Int("delivered", delivered).Msg("actuator status relayed")

	c.enqueue(Message{Type: TypeActuatorStatusAck, Timestamp: nowISO()})
}

// handleCommandAck relays a device's command acknowledgment to dashboard
// sessions. No ack goes back to the device.
func (h *Hub) handleCommandAck(c *Client, data json.RawMessage) {
	if !h.hasRole(c, RoleDevice) {
		c.sendError("Only ESP8266 can send command acknowledgments")
		return
	}

	delivered := h.broadcastToRole(RoleDashboard, Message{
		Type:      TypeCommandAck,
		Data:      data,
		Timestamp: nowISO(),
	})
	h.logger.Debug().Str("client_id", c.id).Int("delivered", delivered).Msg("command ack relayed")
}

// hasRole reports whether c currently holds role.
func (h *Hub) hasRole(c *Client, role Role) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.role == role
}

// broadcastToRole fans msg out to every session holding role and returns the
// number of sessions the message was queued for. Delivery is best-effort:
// sessions with a full outbound buffer are skipped, and partial delivery is
// never rolled back.
func (h *Hub) broadcastToRole(role Role, msg Message) int {
	delivered := 0
	for _, c := range h.clientsByRole(role) {
		if c.enqueue(msg) {
			delivered++
		}
	}
	return delivered
}

// DispatchCommandToDevices pushes a command to every connected device
// session, wrapped as a command_dispatch message. It returns true if at
// least one device session received it; the caller decides whether a miss
// is user-visible ("device offline"). It never returns an error: the
// command was already durably recorded by the caller.
func (h *Hub) DispatchCommandToDevices(command interface{}) bool {
	delivered := h.broadcastToRole(RoleDevice, Message{
		Type:      TypeCommandDispatch,
		Data:      command,
		Timestamp: nowISO(),
	})

	if delivered == 0 {
		h.logger.Warn().Msg("no device clients connected, command not delivered")
		return false
	}

	h.logger.Info().Int("delivered", delivered).Msg("command dispatched to devices")
	return true
}

// DispatchReadingToDashboards mirrors an already-persisted sensor reading to
// every dashboard session. Push-only; delivery failure is logged, not
// propagated.
func (h *Hub) DispatchReadingToDashboards(reading interface{}) {
	delivered := h.broadcastToRole(RoleDashboard, Message{
		Type:      TypeSensorReading,
		Data:      reading,
		Timestamp: nowISO(),
	})
	h.logger.Debug().Int("delivered", delivered).Msg("reading broadcast to dashboards")
}

// DispatchActuatorStateToDashboards mirrors an already-persisted actuator
// state to every dashboard session. Push-only; delivery failure is logged,
// not propagated.
func (h *Hub) DispatchActuatorStateToDashboards(actuator interface{}) {
	delivered := h.broadcastToRole(RoleDashboard, Message{
		Type:      TypeActuatorStatus,
		Data:      actuator,
		Timestamp: nowISO(),
	})
	h.logger.Debug().Int("delivered", delivered).Msg("actuator state broadcast to dashboards")
}
