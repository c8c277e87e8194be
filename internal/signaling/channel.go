package signaling

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Channel is the bidirectional event bus the call manager talks to. Send is
// fire-and-forget: delivery is not guaranteed and the manager must tolerate
// lost messages. Handlers registered with On are invoked once per inbound
// message, in arrival order, from a single dispatch goroutine.
type Channel interface {
	// Send emits an outbound event addressed to peer. The payload is
	// JSON-encoded by the implementation.
	Send(event Event, to string, payload any) error

	// On registers a handler for an inbound event. Multiple handlers per
	// event are allowed; registration is not safe concurrently with
	// dispatch and should happen before the channel starts delivering.
	On(event Event, handler func(from string, data json.RawMessage))
}

// handlerSet is the shared handler registry used by the channel
// implementations.
type handlerSet struct {
	mu       sync.RWMutex
	handlers map[Event][]func(from string, data json.RawMessage)
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: make(map[Event][]func(from string, data json.RawMessage))}
}

func (h *handlerSet) on(event Event, fn func(from string, data json.RawMessage)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], fn)
}

// dispatch invokes all handlers for the envelope's event. Unknown events
// are dropped; a signaling channel never fails on unexpected input.
func (h *handlerSet) dispatch(env Envelope) {
	h.mu.RLock()
	fns := h.handlers[env.Event]
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(env.From, env.Data)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// In-memory pipe
// ─────────────────────────────────────────────────────────────────────────────

const pipeBufferSize = 64 // per-end inbox capacity

// PipeEnd is one side of an in-memory signaling pair. It applies the same
// outbound→inbound event translation as the relay, so two call managers can
// be wired back-to-back without any network.
type PipeEnd struct {
	id        string
	peer      *PipeEnd
	inbox     chan Envelope
	handlers  *handlerSet
	closeOnce sync.Once
	done      chan struct{}
}

// NewPipe returns two connected channel ends for the given participant IDs.
// Each end delivers inbound messages from a single goroutine, preserving
// arrival order.
func NewPipe(idA, idB string) (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{id: idA, inbox: make(chan Envelope, pipeBufferSize), handlers: newHandlerSet(), done: make(chan struct{})}
	b := &PipeEnd{id: idB, inbox: make(chan Envelope, pipeBufferSize), handlers: newHandlerSet(), done: make(chan struct{})}
	a.peer, b.peer = b, a
	go a.loop()
	go b.loop()
	return a, b
}

func (p *PipeEnd) loop() {
	for {
		select {
		case env := <-p.inbox:
			p.handlers.dispatch(env)
		case <-p.done:
			return
		}
	}
}

// Send translates the event for delivery and drops it into the peer's
// inbox. Messages addressed to anyone but the peer are discarded, matching
// the relay's routing behavior for unknown targets.
func (p *PipeEnd) Send(event Event, to string, payload any) error {
	in, ok := DeliveredAs(event)
	if !ok {
		return fmt.Errorf("event %q is not routable", event)
	}
	if to != p.peer.id {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	select {
	case p.peer.inbox <- Envelope{Event: in, From: p.id, To: to, Data: data}:
	case <-p.peer.done:
	}
	return nil
}

// On registers a handler for an inbound event.
func (p *PipeEnd) On(event Event, handler func(from string, data json.RawMessage)) {
	p.handlers.on(event, handler)
}

// Close stops the dispatch goroutine. Safe to call more than once.
func (p *PipeEnd) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
