package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is one live WebSocket session: the connection, its buffered outbound
// queue, and the metadata negotiated over its lifetime.
//
// The role, clientType and deviceID fields are guarded by the owning hub's
// mutex: they are written by the session's own read goroutine (on auth) and
// read by fan-out and observability paths on other goroutines.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	id          string
	remoteAddr  string
	connectedAt time.Time

	role       Role
	clientType string
	deviceID   string
}

// enqueue marshals msg and queues it for delivery. The send is best-effort:
// if the session is gone or its outbound buffer is full the message is
// dropped and false is returned. It never blocks, so a slow peer cannot
// stall the caller.
func (c *Client) enqueue(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("failed to marshal outbound message")
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.hub.logger.Warn().Str("client_id", c.id).Str("type", msg.Type).Msg("outbound buffer full, message dropped")
		return false
	}
}

// sendError queues an error envelope on the client.
func (c *Client) sendError(errMsg string) {
	c.enqueue(Message{
		Type:      TypeError,
		Error:     errMsg,
		Timestamp: nowISO(),
	})
}

// readPump pumps inbound frames from the connection into the hub's router.
// It runs as the session's single reader goroutine; messages from one
// connection are therefore processed in the order received. Any read error
// terminates the session and removes it from the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client_id", c.id).Msg("websocket read error")
			}
			return
		}
		c.hub.route(c, raw)
	}
}

// writePump drains the client's outbound queue onto the connection and keeps
// the connection alive with periodic pings. It exits when the hub signals
// unregistration through the done channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
