package call

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/mivton/callkit/internal/media"
	"github.com/mivton/callkit/internal/signaling"
	"github.com/mivton/callkit/internal/transport"
)

// Phase is the lifecycle state of a call session. A manager with no session
// is PhaseIdle; terminal transitions destroy the session rather than adding
// a terminal phase value.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequesting
	PhaseRinging
	PhaseNegotiating
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequesting:
		return "requesting"
	case PhaseRinging:
		return "ringing"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Role determines which side creates the SDP offer. Fixed at session
// creation.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// EndReason classifies how a call ended, for UI presentation.
type EndReason string

const (
	ReasonEnded    EndReason = "ended"    // normal hangup, either side
	ReasonDeclined EndReason = "declined" // callee rejected the ring
	ReasonBusy     EndReason = "busy"     // callee was in another call
)

// session holds everything owned by one call attempt. All fields are
// guarded by the manager's mutex; the session never escapes the manager.
type session struct {
	id    string
	role  Role
	peer  signaling.UserInfo
	phase Phase

	local  *media.Stream
	remote *media.RemoteStream
	link   PeerLink

	// Candidates that arrived before the peer link existed; flushed when
	// the link is wired.
	earlyCandidates []webrtc.ICECandidateInit

	startedAt time.Time
	stopTick  chan struct{}
}

// PeerLink is the negotiation surface the manager drives. It is satisfied
// by transport.Peer; tests substitute a fake so the state machine can be
// exercised without ICE.
type PeerLink interface {
	AddTrack(webrtc.TrackLocal) error
	OnTrack(func(*webrtc.TrackRemote))
	OnStateChange(func(webrtc.PeerConnectionState))
	OnLocalCandidate(func(webrtc.ICECandidateInit))

	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddRemoteCandidate(webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState

	Close() error
}

// PeerFactory creates the peer link for a new negotiation.
type PeerFactory func(ctx context.Context) (PeerLink, error)

// DefaultPeerFactory builds a pion-backed link with the given STUN servers.
func DefaultPeerFactory(stunServers []string) PeerFactory {
	return func(ctx context.Context) (PeerLink, error) {
		return transport.New(ctx, stunServers)
	}
}
