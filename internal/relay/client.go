package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mivton/callkit/internal/signaling"
	"github.com/mivton/callkit/internal/util"
)

const (
	writeWait      = 10 * time.Second // max time for one outbound write
	pongWait       = 90 * time.Second // read deadline, refreshed on pong
	pingPeriod     = 30 * time.Second // must be below pongWait
	maxMessageSize = 64 * 1024        // SDP payloads fit comfortably
	sendBufferSize = 64               // per-connection outbound buffer
)

// client is one WebSocket connection registered under a user ID. A read
// pump feeds the hub; a write pump drains the send buffer and keeps the
// connection alive with pings.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	connID string

	send      chan signaling.Envelope
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID, connID string) *client {
	return &client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		connID: connID,
		send:   make(chan signaling.Envelope, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// deliver queues an envelope for the connection. A full buffer means the
// client stopped reading; the message is dropped, consistent with the
// channel's fire-and-forget contract.
func (c *client) deliver(env signaling.Envelope) {
	select {
	case c.send <- env:
	case <-c.done:
	default:
		util.LogWarning("dropping %s for slow client %s", env.Event, c.userID)
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads envelopes until the connection drops, routing each
// through the hub.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env signaling.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				util.LogDebug("conn %s (%s) closed: %v", c.connID, c.userID, err)
			}
			return
		}
		c.hub.route(c, env)
	}
}

// writePump drains the send buffer and pings the peer periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
