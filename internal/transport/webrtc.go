package transport

import (
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are used for ICE candidate gathering when the caller
// supplies none. No TURN — calls that cannot traverse the NAT directly
// simply fail to connect and are surfaced as such.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection configured with the given STUN
// servers. Media lines are added by AddTrack; both sides attach their local
// tracks before creating their description, so every m-line is sendrecv.
func newPeerConnection(stunServers []string) (*webrtc.PeerConnection, error) {
	if len(stunServers) == 0 {
		stunServers = DefaultSTUNServers
	}

	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}

	return webrtc.NewPeerConnection(config)
}
