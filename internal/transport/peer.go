// Package transport wraps a pion PeerConnection for a single media call,
// providing the offer/answer/ICE surface the call manager drives plus
// lifecycle gates for connection establishment and shutdown.
package transport

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mivton/callkit/internal/util"
)

// Peer wraps one PeerConnection, adding:
//
//   - buffering of remote ICE candidates that arrive before the remote
//     description is applied (flushed afterwards),
//   - Ready/Done channel gates keyed on the connection state,
//   - an idempotent Close.
//
// A Peer belongs to exactly one call session and is closed with it.
type Peer struct {
	pc *webrtc.PeerConnection

	ctx    context.Context
	cancel context.CancelFunc

	readyOnce sync.Once
	ready     chan struct{}

	mu         sync.Mutex
	haveRemote bool
	pending    []webrtc.ICECandidateInit
}

// New creates a Peer backed by a fresh PeerConnection. The Peer is alive
// until Close is called or the parent context is cancelled.
func New(ctx context.Context, stunServers []string) (*Peer, error) {
	pc, err := newPeerConnection(stunServers)
	if err != nil {
		return nil, err
	}

	pCtx, pCancel := context.WithCancel(ctx)

	p := &Peer{
		pc:     pc,
		ctx:    pCtx,
		cancel: pCancel,
		ready:  make(chan struct{}),
	}

	return p, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel closed once the connection state reaches
// connected.
func (p *Peer) Ready() <-chan struct{} {
	return p.ready
}

// Done returns a channel closed when the Peer is shut down.
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Close shuts down the PeerConnection. Safe to call more than once.
func (p *Peer) Close() error {
	p.cancel()
	return p.pc.Close()
}

// OnStateChange registers a callback for connection state transitions. The
// Ready gate is maintained internally regardless of the callback.
func (p *Peer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("peer connection state: %s", state.String())
		if state == webrtc.PeerConnectionStateConnected {
			p.readyOnce.Do(func() { close(p.ready) })
		}
		if fn != nil {
			fn(state)
		}
	})
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddTrack attaches a local track for sending.
func (p *Peer) AddTrack(track webrtc.TrackLocal) error {
	_, err := p.pc.AddTrack(track)
	return err
}

// OnTrack registers a callback invoked for every inbound remote track.
func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

// ---------------------------------------------------------------------------
// Negotiation
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP, then flushes any ICE
// candidates buffered before it arrived.
func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(sdp); err != nil {
		return err
	}

	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.haveRemote = true
	p.mu.Unlock()

	for _, init := range pending {
		if err := p.pc.AddICECandidate(init); err != nil {
			// A bad buffered candidate is not fatal; others may connect.
			util.LogWarning("failed to add buffered ICE candidate: %v", err)
		}
	}

	return nil
}

// SignalingState reports the negotiation state, used to ignore answers
// arriving when the connection is already stable.
func (p *Peer) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}

// OnLocalCandidate registers a callback for trickled local ICE candidates.
// Gathering completion (the nil candidate) is filtered out.
func (p *Peer) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

// AddRemoteCandidate adds a remote ICE candidate. Candidates that arrive
// before the remote description are buffered and flushed once it is set.
func (p *Peer) AddRemoteCandidate(init webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.haveRemote {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.pc.AddICECandidate(init)
}
