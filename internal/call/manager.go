// Package call implements the call session state machine: initiation,
// ringing, accept/decline, SDP and ICE exchange, connection tracking, and a
// single teardown path releasing every session-owned resource exactly once.
//
// The manager owns at most one session at a time. It talks to the outside
// world through three boundaries: a signaling.Channel for call-control
// messages, a media.Source for local capture, and observer callbacks toward
// the UI layer. It never touches presentation itself.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/mivton/callkit/internal/config"
	"github.com/mivton/callkit/internal/media"
	"github.com/mivton/callkit/internal/signaling"
	"github.com/mivton/callkit/internal/util"
)

var (
	// ErrCallInProgress is returned when a new call is requested while a
	// session is active. The active session is left untouched.
	ErrCallInProgress = errors.New("a call is already in progress")

	// ErrNoActiveCall is returned by operations that require a session.
	ErrNoActiveCall = errors.New("no active call")

	// ErrInvalidState is returned when an operation does not apply to the
	// session's current phase.
	ErrInvalidState = errors.New("operation not valid in current call phase")
)

const defaultTickInterval = time.Second

// Manager is the call session manager. Construct one per signed-in user
// with NewManager; there is no package-level instance.
type Manager struct {
	self        signaling.UserInfo
	channel     signaling.Channel
	source      media.Source
	constraints config.MediaConstraints
	newPeer     PeerFactory
	now         func() time.Time
	tickEvery   time.Duration

	mu      sync.Mutex
	session *session
	events  events
}

// events are the observer callbacks toward the UI layer. All are optional.
type events struct {
	incoming     func(callID string, caller signaling.UserInfo)
	connected    func(callID string)
	durationTick func(callID string, elapsed time.Duration)
	ended        func(callID string, reason EndReason, duration time.Duration)
	failed       func(callID string, message string)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPeerFactory substitutes the peer-link factory.
func WithPeerFactory(f PeerFactory) Option {
	return func(m *Manager) { m.newPeer = f }
}

// WithConstraints overrides the default capture constraints.
func WithConstraints(c config.MediaConstraints) Option {
	return func(m *Manager) { m.constraints = c }
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTickInterval changes the duration-tick period.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) { m.tickEvery = d }
}

// NewManager creates a manager bound to the given identity, signaling
// channel and media source, and registers its inbound event handlers on the
// channel.
func NewManager(self signaling.UserInfo, ch signaling.Channel, src media.Source, opts ...Option) *Manager {
	m := &Manager{
		self:        self,
		channel:     ch,
		source:      src,
		constraints: config.DefaultMediaConstraints(),
		newPeer:     DefaultPeerFactory(nil),
		now:         time.Now,
		tickEvery:   defaultTickInterval,
	}
	for _, opt := range opts {
		opt(m)
	}

	ch.On(signaling.EventIncoming, m.handleIncoming)
	ch.On(signaling.EventAccepted, m.handleAccepted)
	ch.On(signaling.EventDeclined, m.handleDeclined)
	ch.On(signaling.EventEnded, m.handleEnded)
	ch.On(signaling.EventOffer, m.handleOffer)
	ch.On(signaling.EventAnswer, m.handleAnswer)
	ch.On(signaling.EventCandidate, m.handleCandidate)
	ch.On(signaling.EventError, m.handleError)

	return m
}

// ---------------------------------------------------------------------------
// Observer registration
// ---------------------------------------------------------------------------

// OnIncomingCall registers the callback invoked when a call rings in.
func (m *Manager) OnIncomingCall(fn func(callID string, caller signaling.UserInfo)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.incoming = fn
}

// OnConnected registers the callback invoked when the peer connection is
// established.
func (m *Manager) OnConnected(fn func(callID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.connected = fn
}

// OnDurationTick registers the callback invoked once per tick interval
// while connected.
func (m *Manager) OnDurationTick(fn func(callID string, elapsed time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.durationTick = fn
}

// OnEnded registers the callback invoked when a call finishes for a
// non-failure reason. Duration is zero unless the call was connected.
func (m *Manager) OnEnded(fn func(callID string, reason EndReason, duration time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.ended = fn
}

// OnFailed registers the callback invoked when a call fails: media access
// denied, negotiation failure, or a remote error event.
func (m *Manager) OnFailed(fn func(callID string, message string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.failed = fn
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Phase returns the current call phase, PhaseIdle when no session exists.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return PhaseIdle
	}
	return m.session.phase
}

// ActiveCall returns the call ID and remote participant of the active
// session, if any.
func (m *Manager) ActiveCall() (string, signaling.UserInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", signaling.UserInfo{}, false
	}
	return m.session.id, m.session.peer, true
}

// ---------------------------------------------------------------------------
// Local operations
// ---------------------------------------------------------------------------

// Call places an outgoing call to peer: acquires local media, then sends
// the initiate event. If media acquisition fails nothing is sent and the
// manager returns to idle. Rejected immediately when a session is active.
func (m *Manager) Call(ctx context.Context, peer signaling.UserInfo) error {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return ErrCallInProgress
	}

	s := &session{
		id:    fmt.Sprintf("%s_%s_%d", m.self.ID, peer.ID, m.now().UnixMilli()),
		role:  RoleInitiator,
		peer:  peer,
		phase: PhaseRequesting,
	}
	m.session = s
	m.mu.Unlock()

	// Media is acquired outside the lock; the placeholder session makes
	// concurrent calls and incoming rings observe "busy" meanwhile.
	stream, err := m.source.Acquire(ctx, m.constraints)

	m.mu.Lock()
	if m.session != s {
		// Torn down while acquiring (local cancel); release the late
		// stream and report the call gone.
		m.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return ErrNoActiveCall
	}

	if err != nil {
		m.teardown()
		notify := m.failureNotify(s.id, fmt.Sprintf("media access failed: %v", err))
		m.mu.Unlock()
		util.LogWarning("call to %s aborted: %v", peer.ID, err)
		notify()
		return fmt.Errorf("acquire local media: %w", err)
	}

	s.local = stream
	if err := m.channel.Send(signaling.EventInitiate, peer.ID, signaling.InitiatePayload{
		CallID: s.id,
		Caller: m.self,
	}); err != nil {
		m.teardown()
		m.mu.Unlock()
		return fmt.Errorf("send initiate: %w", err)
	}

	util.Stats.AddPlaced()
	util.LogInfo("calling %s (call %s)", peer.ID, s.id)
	m.mu.Unlock()
	return nil
}

// Accept answers a ringing incoming call: acquires local media, prepares
// the peer link and confirms to the caller. The SDP offer then arrives from
// the initiator.
func (m *Manager) Accept(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	if s.role != RoleResponder || s.phase != PhaseRinging {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.mu.Unlock()

	stream, err := m.source.Acquire(ctx, m.constraints)

	m.mu.Lock()
	if m.session != s || s.phase != PhaseRinging {
		// The caller hung up while we were acquiring.
		m.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return ErrNoActiveCall
	}

	if err != nil {
		// Media failure on accept: tell the caller we are not coming.
		_ = m.channel.Send(signaling.EventDecline, s.peer.ID, signaling.DeclinePayload{
			CallID:   s.id,
			CallerID: s.peer.ID,
		})
		m.teardown()
		notify := m.failureNotify(s.id, fmt.Sprintf("media access failed: %v", err))
		m.mu.Unlock()
		notify()
		return fmt.Errorf("acquire local media: %w", err)
	}

	s.local = stream
	if err := m.wireLink(ctx, s); err != nil {
		m.teardown()
		notify := m.failureNotify(s.id, fmt.Sprintf("peer setup failed: %v", err))
		m.mu.Unlock()
		notify()
		return err
	}

	s.phase = PhaseNegotiating
	if err := m.channel.Send(signaling.EventAccept, s.peer.ID, signaling.AcceptPayload{
		CallID:   s.id,
		CallerID: s.peer.ID,
	}); err != nil {
		m.teardown()
		m.mu.Unlock()
		return fmt.Errorf("send accept: %w", err)
	}

	util.LogInfo("accepted call %s from %s", s.id, s.peer.ID)
	m.mu.Unlock()
	return nil
}

// Decline rejects a ringing incoming call. Silent locally — the UI
// performed the action.
func (m *Manager) Decline() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil {
		return ErrNoActiveCall
	}
	if s.role != RoleResponder || s.phase != PhaseRinging {
		return ErrInvalidState
	}

	_ = m.channel.Send(signaling.EventDecline, s.peer.ID, signaling.DeclinePayload{
		CallID:   s.id,
		CallerID: s.peer.ID,
	})
	m.teardown()
	util.LogInfo("declined call %s", s.id)
	return nil
}

// Cancel withdraws an outgoing call that has not been answered. Silent
// locally. Best effort on the wire — a lost cancel leaves the remote ring
// to its own timeout.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil {
		return ErrNoActiveCall
	}
	if s.role != RoleInitiator || s.phase != PhaseRequesting {
		return ErrInvalidState
	}

	_ = m.channel.Send(signaling.EventCancel, s.peer.ID, signaling.EndPayload{CallID: s.id})
	m.teardown()
	util.LogInfo("cancelled call %s", s.id)
	return nil
}

// End hangs up a negotiating or connected call and releases all resources.
func (m *Manager) End() error {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	if s.phase != PhaseNegotiating && s.phase != PhaseConnected {
		m.mu.Unlock()
		return ErrInvalidState
	}

	_ = m.channel.Send(signaling.EventEnd, s.peer.ID, signaling.EndPayload{CallID: s.id})
	duration := m.teardown()
	cb := m.events.ended
	m.mu.Unlock()

	util.LogInfo("ended call %s (duration %s)", s.id, duration.Round(time.Second))
	if cb != nil {
		cb(s.id, ReasonEnded, duration)
	}
	return nil
}

// SetAudioEnabled flips the local mute flag. No renegotiation happens.
func (m *Manager) SetAudioEnabled(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.local == nil {
		return ErrNoActiveCall
	}
	m.session.local.SetAudioEnabled(on)
	return nil
}

// SetVideoEnabled flips the local camera flag. No renegotiation happens.
func (m *Manager) SetVideoEnabled(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.local == nil {
		return ErrNoActiveCall
	}
	m.session.local.SetVideoEnabled(on)
	return nil
}

// ---------------------------------------------------------------------------
// Inbound signaling
// ---------------------------------------------------------------------------

// handleIncoming surfaces a ringing call, or auto-declines with "busy" when
// a session is already active.
func (m *Manager) handleIncoming(from string, data json.RawMessage) {
	var p signaling.InitiatePayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		util.LogWarning("ignoring malformed incoming event from %s", from)
		return
	}
	caller := p.Caller
	if caller.ID == "" {
		caller.ID = from
	}

	m.mu.Lock()
	if m.session != nil {
		active := m.session.id
		m.mu.Unlock()
		util.LogInfo("busy on call %s — auto-declining %s from %s", active, p.CallID, caller.ID)
		_ = m.channel.Send(signaling.EventDecline, caller.ID, signaling.DeclinePayload{
			CallID:   p.CallID,
			CallerID: caller.ID,
			Reason:   signaling.DeclineReasonBusy,
		})
		return
	}

	m.session = &session{
		id:    p.CallID,
		role:  RoleResponder,
		peer:  caller,
		phase: PhaseRinging,
	}
	cb := m.events.incoming
	m.mu.Unlock()

	util.Stats.AddReceived()
	util.LogInfo("incoming call %s from %s", p.CallID, caller.ID)
	if cb != nil {
		cb(p.CallID, caller)
	}
}

// handleAccepted moves the initiator into negotiation: create the peer
// link, produce the offer and send it.
func (m *Manager) handleAccepted(from string, data json.RawMessage) {
	var p signaling.AcceptPayload
	_ = json.Unmarshal(data, &p)

	m.mu.Lock()
	s, ok := m.match(p.CallID, "accepted")
	if !ok {
		m.mu.Unlock()
		return
	}
	if s.role != RoleInitiator || s.phase != PhaseRequesting {
		m.mu.Unlock()
		util.LogWarning("ignoring accepted event in phase %s", s.phase)
		return
	}

	if err := m.wireLink(context.Background(), s); err != nil {
		m.failLocked(s, fmt.Sprintf("peer setup failed: %v", err))
		return
	}
	s.phase = PhaseNegotiating

	offer, err := s.link.CreateOffer()
	if err == nil {
		err = s.link.SetLocalDescription(offer)
	}
	if err != nil {
		m.failLocked(s, fmt.Sprintf("offer failed: %v", err))
		return
	}

	sendErr := m.channel.Send(signaling.EventOffer, s.peer.ID, signaling.SDPPayload{
		CallID: s.id,
		SDP:    offer.SDP,
	})
	if sendErr != nil {
		m.failLocked(s, fmt.Sprintf("send offer: %v", sendErr))
		return
	}

	util.LogDebug("call %s accepted, offer sent", s.id)
	m.mu.Unlock()
}

// handleDeclined ends an outgoing call attempt and reports it to the UI.
func (m *Manager) handleDeclined(from string, data json.RawMessage) {
	var p signaling.DeclinePayload
	_ = json.Unmarshal(data, &p)

	m.mu.Lock()
	s, ok := m.match(p.CallID, "declined")
	if !ok {
		m.mu.Unlock()
		return
	}
	if s.role != RoleInitiator || s.phase != PhaseRequesting {
		m.mu.Unlock()
		util.LogWarning("ignoring declined event in phase %s", s.phase)
		return
	}

	reason := ReasonDeclined
	if p.Reason == signaling.DeclineReasonBusy {
		reason = ReasonBusy
	}
	m.teardown()
	cb := m.events.ended
	m.mu.Unlock()

	util.LogInfo("call %s declined (%s)", s.id, reason)
	if cb != nil {
		cb(s.id, reason, 0)
	}
}

// handleOffer applies the initiator's offer and answers it (responder
// only).
func (m *Manager) handleOffer(from string, data json.RawMessage) {
	var p signaling.SDPPayload
	_ = json.Unmarshal(data, &p)

	m.mu.Lock()
	s, ok := m.match(p.CallID, "offer")
	if !ok {
		m.mu.Unlock()
		return
	}
	if s.role != RoleResponder || s.phase != PhaseNegotiating || s.link == nil {
		m.mu.Unlock()
		util.LogWarning("ignoring offer in phase %s", s.phase)
		return
	}

	err := s.link.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	})
	var answer webrtc.SessionDescription
	if err == nil {
		answer, err = s.link.CreateAnswer()
	}
	if err == nil {
		err = s.link.SetLocalDescription(answer)
	}
	if err != nil {
		m.failLocked(s, fmt.Sprintf("answer failed: %v", err))
		return
	}

	if sendErr := m.channel.Send(signaling.EventAnswer, s.peer.ID, signaling.SDPPayload{
		CallID: s.id,
		SDP:    answer.SDP,
	}); sendErr != nil {
		m.failLocked(s, fmt.Sprintf("send answer: %v", sendErr))
		return
	}

	util.LogDebug("call %s: answer sent", s.id)
	m.mu.Unlock()
}

// handleAnswer applies the responder's answer (initiator only). An answer
// arriving when the link is already stable is ignored.
func (m *Manager) handleAnswer(from string, data json.RawMessage) {
	var p signaling.SDPPayload
	_ = json.Unmarshal(data, &p)

	m.mu.Lock()
	s, ok := m.match(p.CallID, "answer")
	if !ok {
		m.mu.Unlock()
		return
	}
	if s.role != RoleInitiator || s.phase != PhaseNegotiating || s.link == nil {
		m.mu.Unlock()
		util.LogWarning("ignoring answer in phase %s", s.phase)
		return
	}
	if s.link.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		m.mu.Unlock()
		util.LogWarning("ignoring answer for call %s: not awaiting one", s.id)
		return
	}

	if err := s.link.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  p.SDP,
	}); err != nil {
		m.failLocked(s, fmt.Sprintf("apply answer: %v", err))
		return
	}

	util.LogDebug("call %s: answer applied", s.id)
	m.mu.Unlock()
}

// handleCandidate relays a remote ICE candidate to the peer link.
// Candidates arriving before the link exists are buffered on the session;
// the link itself buffers candidates that precede the remote description.
func (m *Manager) handleCandidate(from string, data json.RawMessage) {
	var p signaling.CandidatePayload
	_ = json.Unmarshal(data, &p)

	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(p.Candidate), &init); err != nil {
		util.LogWarning("ignoring malformed ICE candidate from %s", from)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.match(p.CallID, "ice-candidate")
	if !ok {
		return
	}

	if s.link == nil {
		s.earlyCandidates = append(s.earlyCandidates, init)
		return
	}
	if err := s.link.AddRemoteCandidate(init); err != nil {
		// Non-fatal: remaining candidates may still connect.
		util.LogWarning("call %s: add ICE candidate: %v", s.id, err)
	}
}

// handleEnded tears the session down on a remote hangup (or a cancelled
// ring, which the channel delivers as "ended").
func (m *Manager) handleEnded(from string, data json.RawMessage) {
	var p signaling.EndPayload
	_ = json.Unmarshal(data, &p)

	m.mu.Lock()
	s, ok := m.match(p.CallID, "ended")
	if !ok {
		m.mu.Unlock()
		return
	}

	duration := m.teardown()
	cb := m.events.ended
	m.mu.Unlock()

	util.LogInfo("call %s ended by %s (duration %s)", s.id, s.peer.ID, duration.Round(time.Second))
	if cb != nil {
		cb(s.id, ReasonEnded, duration)
	}
}

// handleError treats a remote error event as terminal for the matching
// session. Errors with no session, or for another call, are logged only.
func (m *Manager) handleError(from string, data json.RawMessage) {
	var p signaling.ErrorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		util.LogWarning("ignoring malformed error event from %s", from)
		return
	}

	m.mu.Lock()
	s := m.session
	if s == nil || (p.CallID != "" && p.CallID != s.id) {
		m.mu.Unlock()
		util.LogWarning("signaling error (no matching call): %s", p.Message)
		return
	}
	m.failLocked(s, p.Message)
}

// ---------------------------------------------------------------------------
// Peer link wiring and connection tracking
// ---------------------------------------------------------------------------

// wireLink creates the peer link for s, attaches local tracks, registers
// ICE/track/state callbacks and flushes candidates buffered before the link
// existed. Caller holds m.mu.
func (m *Manager) wireLink(ctx context.Context, s *session) error {
	link, err := m.newPeer(ctx)
	if err != nil {
		return fmt.Errorf("create peer link: %w", err)
	}
	s.link = link
	s.remote = media.NewRemoteStream()

	callID := s.id
	peerID := s.peer.ID
	remote := s.remote

	link.OnLocalCandidate(func(init webrtc.ICECandidateInit) {
		raw, err := json.Marshal(init)
		if err != nil {
			return
		}
		// Best effort, same as every trickled candidate.
		_ = m.channel.Send(signaling.EventCandidate, peerID, signaling.CandidatePayload{
			CallID:    callID,
			Candidate: string(raw),
		})
	})

	link.OnTrack(func(track *webrtc.TrackRemote) {
		remote.Add(track)
	})

	link.OnStateChange(func(state webrtc.PeerConnectionState) {
		m.handlePeerState(callID, state)
	})

	if s.local != nil {
		for _, track := range s.local.Tracks() {
			if err := link.AddTrack(track); err != nil {
				return fmt.Errorf("attach local track: %w", err)
			}
		}
	}

	for _, init := range s.earlyCandidates {
		if err := link.AddRemoteCandidate(init); err != nil {
			util.LogWarning("call %s: buffered ICE candidate rejected: %v", s.id, err)
		}
	}
	s.earlyCandidates = nil

	return nil
}

// handlePeerState reacts to connection state changes of the session's peer
// link. Stale callbacks from a previous call are filtered by call ID.
func (m *Manager) handlePeerState(callID string, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		m.mu.Lock()
		s := m.session
		if s == nil || s.id != callID || s.phase != PhaseNegotiating {
			m.mu.Unlock()
			return
		}
		s.phase = PhaseConnected
		s.startedAt = m.now()
		s.stopTick = make(chan struct{})
		go m.tickLoop(callID, s.startedAt, s.stopTick)
		cb := m.events.connected
		m.mu.Unlock()

		util.Stats.AddConnected()
		util.LogSuccess("call %s connected", callID)
		if cb != nil {
			cb(callID)
		}

	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		m.mu.Lock()
		s := m.session
		if s == nil || s.id != callID {
			// Normal teardown already closed the link.
			m.mu.Unlock()
			return
		}
		m.failLocked(s, "connection lost")
	}
}

// tickLoop emits duration ticks while the call is connected.
func (m *Manager) tickLoop(callID string, started time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(m.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			cb := m.events.durationTick
			m.mu.Unlock()
			if cb != nil {
				cb(callID, m.now().Sub(started))
			}
		case <-stop:
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// match returns the active session when the inbound callID refers to it.
// Unknown and mismatched call IDs are logged and ignored, never affecting
// the active session. Caller holds m.mu.
func (m *Manager) match(callID, event string) (*session, bool) {
	s := m.session
	if s == nil {
		util.LogDebug("ignoring %s event with no active call", event)
		return nil, false
	}
	if callID != s.id {
		util.LogWarning("ignoring %s event for call %q (active call is %q)", event, callID, s.id)
		return nil, false
	}
	return s, true
}

// teardown is the single exit path for every terminal transition. It
// releases the local stream, the remote stream and the peer link exactly
// once, clears the session and returns the connected duration. Safe to
// reach twice — the second caller finds no session. Caller holds m.mu.
func (m *Manager) teardown() time.Duration {
	s := m.session
	if s == nil {
		return 0
	}
	m.session = nil

	if s.stopTick != nil {
		close(s.stopTick)
	}
	if s.local != nil {
		s.local.Close()
	}
	if s.remote != nil {
		s.remote.Close()
	}
	if s.link != nil {
		if err := s.link.Close(); err != nil {
			util.LogDebug("call %s: close peer link: %v", s.id, err)
		}
	}

	var duration time.Duration
	if !s.startedAt.IsZero() {
		duration = m.now().Sub(s.startedAt)
	}
	util.LogDebug("call %s torn down (phase was %s)", s.id, s.phase)
	return duration
}

// failLocked tears the session down and notifies the UI of a failure. It
// takes m.mu held and releases it.
func (m *Manager) failLocked(s *session, message string) {
	m.teardown()
	notify := m.failureNotify(s.id, message)
	m.mu.Unlock()

	util.Stats.AddFailed()
	util.LogError("call %s failed: %s", s.id, message)
	notify()
}

// failureNotify captures the failure callback under the lock and returns a
// closure to invoke after release.
func (m *Manager) failureNotify(callID, message string) func() {
	cb := m.events.failed
	return func() {
		if cb != nil {
			cb(callID, message)
		}
	}
}
