package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Stream is a set of local tracks owned by one call session. Mute and
// camera-off are flag flips observed by the producing source — no track is
// re-acquired and no renegotiation happens.
type Stream struct {
	audio webrtc.TrackLocal
	video webrtc.TrackLocal

	audioOn atomic.Bool
	videoOn atomic.Bool

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// NewStream wraps the given local tracks. Either track may be nil for an
// audio-only or video-only stream. Both directions start enabled.
func NewStream(audio, video webrtc.TrackLocal) *Stream {
	s := &Stream{
		audio: audio,
		video: video,
		done:  make(chan struct{}),
	}
	s.audioOn.Store(audio != nil)
	s.videoOn.Store(video != nil)
	return s
}

// Tracks returns the non-nil local tracks for attachment to a peer
// connection.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

// SetAudioEnabled flips the mute flag. The producing source stops writing
// audio samples while the flag is off.
func (s *Stream) SetAudioEnabled(on bool) {
	if s.audio != nil {
		s.audioOn.Store(on)
	}
}

// SetVideoEnabled flips the camera flag.
func (s *Stream) SetVideoEnabled(on bool) {
	if s.video != nil {
		s.videoOn.Store(on)
	}
}

func (s *Stream) AudioEnabled() bool { return s.audioOn.Load() }
func (s *Stream) VideoEnabled() bool { return s.videoOn.Load() }

// Done returns a channel closed when the stream is released; the producing
// source uses it to stop its writers.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close releases the stream. Safe to call more than once, and safe to call
// on a stream that never produced a frame.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
}

// Closed reports whether the stream has been released.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}
