// Package relay implements the signaling relay: a WebSocket server that
// routes call-control envelopes between connected users. It translates
// outbound event names to their inbound counterparts (initiate → incoming,
// accept → accepted, …) and answers unroutable messages with an error
// event. Payloads are opaque to the relay apart from the call ID echoed in
// error replies.
package relay

import (
	"encoding/json"
	"sync"

	"github.com/mivton/callkit/internal/signaling"
	"github.com/mivton/callkit/internal/util"
)

// Hub tracks the active connection per user and routes envelopes between
// them. A reconnecting user replaces their previous connection.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if prev != nil {
		prev.close()
		util.LogInfo("user %s reconnected (conn %s replaces %s)", c.userID, c.connID, prev.connID)
		return
	}
	util.LogInfo("user %s connected (conn %s)", c.userID, c.connID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	util.LogInfo("user %s disconnected (conn %s)", c.userID, c.connID)
}

// Online reports whether a user currently holds a connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// route forwards one envelope from sender to its target. The From field is
// stamped with the sender's user ID; the sender-supplied value is never
// trusted.
func (h *Hub) route(sender *client, env signaling.Envelope) {
	delivered, ok := signaling.DeliveredAs(env.Event)
	if !ok {
		util.LogWarning("dropping unroutable event %q from %s", env.Event, sender.userID)
		return
	}
	if env.To == "" || env.To == sender.userID {
		util.LogWarning("dropping %s from %s: bad target %q", env.Event, sender.userID, env.To)
		return
	}

	h.mu.RLock()
	target := h.clients[env.To]
	h.mu.RUnlock()

	if target == nil {
		util.LogDebug("%s from %s: target %s offline", env.Event, sender.userID, env.To)
		sender.deliver(signaling.Envelope{
			Event: signaling.EventError,
			Data:  errorData(env.Data, "user unavailable"),
		})
		return
	}

	target.deliver(signaling.Envelope{
		Event: delivered,
		From:  sender.userID,
		Data:  env.Data,
	})
}

// errorData builds an ErrorPayload echoing the call ID of the message that
// failed to route, when the payload carries one.
func errorData(payload json.RawMessage, message string) json.RawMessage {
	var ref struct {
		CallID string `json:"callId"`
	}
	_ = json.Unmarshal(payload, &ref)

	data, _ := json.Marshal(signaling.ErrorPayload{
		CallID:  ref.CallID,
		Message: message,
	})
	return data
}
