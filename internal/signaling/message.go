// Package signaling defines the call-control message contract and the
// channel implementations that carry it: a WebSocket client talking to a
// relay, and an in-memory pipe for local wiring and tests.
package signaling

import "encoding/json"

// Event identifies the kind of signaling message.
type Event string

// Outbound events (sent by a participant).
const (
	EventInitiate  Event = "initiate"
	EventAccept    Event = "accept"
	EventDecline   Event = "decline"
	EventCancel    Event = "cancel"
	EventEnd       Event = "end"
	EventOffer     Event = "offer"
	EventAnswer    Event = "answer"
	EventCandidate Event = "ice-candidate"
)

// Inbound events (delivered to a participant).
const (
	EventIncoming Event = "incoming"
	EventAccepted Event = "accepted"
	EventDeclined Event = "declined"
	EventEnded    Event = "ended"
	EventError    Event = "error"
)

// deliveredAs maps an outbound event to the event name the remote peer
// receives. A cancelled ring is delivered as "ended" so the callee's UI
// clears without a dedicated wire event.
var deliveredAs = map[Event]Event{
	EventInitiate:  EventIncoming,
	EventAccept:    EventAccepted,
	EventDecline:   EventDeclined,
	EventCancel:    EventEnded,
	EventEnd:       EventEnded,
	EventOffer:     EventOffer,
	EventAnswer:    EventAnswer,
	EventCandidate: EventCandidate,
}

// DeliveredAs returns the inbound event name a remote peer receives for an
// outbound event, and whether the event is routable at all.
func DeliveredAs(out Event) (Event, bool) {
	in, ok := deliveredAs[out]
	return in, ok
}

// Envelope is the JSON structure exchanged over the wire. From is stamped
// by the relay (never trusted from the sender), Data holds the
// event-specific payload.
type Envelope struct {
	Event Event           `json:"event"`
	From  string          `json:"from,omitempty"`
	To    string          `json:"to,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserInfo carries display information about a participant. Only ID has
// protocol meaning; name and avatar are for presentation.
type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Event payloads. Every payload carries the CallID chosen by the initiator;
// it must round-trip unchanged on all messages of a call.
// ─────────────────────────────────────────────────────────────────────────────

// InitiatePayload starts a call; delivered to the callee as "incoming".
type InitiatePayload struct {
	CallID string   `json:"callId"`
	Caller UserInfo `json:"caller"`
}

// AcceptPayload confirms the callee picked up; delivered as "accepted".
type AcceptPayload struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
}

// DeclinePayload rejects a ringing call; delivered as "declined".
// Reason distinguishes a user decline from a busy auto-decline.
type DeclinePayload struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	Reason   string `json:"reason,omitempty"`
}

// EndPayload terminates a call (or cancels a ring); delivered as "ended".
type EndPayload struct {
	CallID string `json:"callId"`
}

// SDPPayload carries an offer or answer.
type SDPPayload struct {
	CallID string `json:"callId"`
	SDP    string `json:"sdp"`
}

// CandidatePayload carries one trickled ICE candidate. Candidate is a
// JSON-encoded ICECandidateInit, kept opaque to the relay.
type CandidatePayload struct {
	CallID    string `json:"callId"`
	Candidate string `json:"candidate"`
}

// ErrorPayload reports a channel-level failure back to a sender, e.g. a
// message addressed to an offline user.
type ErrorPayload struct {
	CallID  string `json:"callId,omitempty"`
	Message string `json:"error"`
}

const (
	// DeclineReasonBusy marks an automatic decline sent while another
	// call is active.
	DeclineReasonBusy = "busy"
)
