package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mivton/callkit/internal/util"
)

// Client is a Channel backed by a WebSocket connection to the relay server.
// A single mutex-guarded writer serializes outbound frames; a single read
// pump delivers inbound envelopes in arrival order.
type Client struct {
	userID string
	conn   *websocket.Conn

	writeMu  sync.Mutex
	handlers *handlerSet

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay at url, registering as userID. The URL should
// point at the relay's /ws endpoint; the user ID is passed as a query
// parameter, e.g.:
//
//	wss://relay.example.com/ws?user=alice
func Dial(ctx context.Context, url, userID string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s?user=%s", url, userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	c := &Client{
		userID:   userID,
		conn:     conn,
		handlers: newHandlerSet(),
		done:     make(chan struct{}),
	}

	go c.readPump()

	return c, nil
}

// readPump reads envelopes until the connection closes and dispatches them
// to registered handlers. Malformed frames are logged and skipped.
func (c *Client) readPump() {
	defer c.Close()

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				util.LogWarning("relay connection closed: %v", err)
			}
			return
		}

		util.Stats.AddRecv()
		c.handlers.dispatch(env)
	}
}

// Send writes one envelope to the relay. Best-effort: a write error after
// the connection closed is reported but carries no delivery guarantee
// either way.
func (c *Client) Send(event Event, to string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(Envelope{Event: event, To: to, Data: data}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}

	util.Stats.AddSent()
	return nil
}

// On registers a handler for an inbound event.
func (c *Client) On(event Event, handler func(from string, data json.RawMessage)) {
	c.handlers.on(event, handler)
}

// Done returns a channel closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
