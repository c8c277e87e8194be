package media

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mivton/callkit/internal/util"
)

// RemoteStream accumulates inbound tracks as they arrive from the peer
// connection. Each track is drained by a background reader so RTCP keeps
// flowing; consumers that render media would tap the tracks instead.
type RemoteStream struct {
	mu     sync.Mutex
	tracks []*webrtc.TrackRemote

	closeOnce sync.Once
	done      chan struct{}
}

// NewRemoteStream returns an empty remote stream.
func NewRemoteStream() *RemoteStream {
	return &RemoteStream{done: make(chan struct{})}
}

// Add registers an inbound track and starts draining it. Reading stops when
// the track errors out, which happens when the owning peer connection
// closes.
func (r *RemoteStream) Add(track *webrtc.TrackRemote) {
	r.mu.Lock()
	r.tracks = append(r.tracks, track)
	r.mu.Unlock()

	util.LogDebug("remote %s track added (%s)", track.Kind().String(), track.Codec().MimeType)

	go func() {
		for {
			select {
			case <-r.done:
				return
			default:
			}
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	}()
}

// Tracks returns a snapshot of the tracks received so far.
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), r.tracks...)
}

// Len returns the number of tracks received so far.
func (r *RemoteStream) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}

// Close stops the drain readers. Safe to call more than once.
func (r *RemoteStream) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
