package media

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/mivton/callkit/internal/config"
)

const frameInterval = 20 * time.Millisecond

// opusSilence is a minimal Opus frame decoding to silence.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// SyntheticSource is a Source that synthesizes sample tracks: Opus silence
// and an empty VP8 stream. It keeps the negotiation and track plumbing real
// without touching capture devices; wiring an actual camera or microphone
// is an integration concern.
//
// FailAcquire simulates a denied permission, which is how the CLI and tests
// exercise the media-failure path.
type SyntheticSource struct {
	FailAcquire bool
}

// Acquire builds the local tracks per the constraints and starts a writer
// goroutine that pumps frames until the stream is closed. Disabled flags
// pause the corresponding writer without stopping the track.
func (s *SyntheticSource) Acquire(ctx context.Context, c config.MediaConstraints) (*Stream, error) {
	if s.FailAcquire {
		return nil, &AccessError{Reason: "permission denied"}
	}

	var audio, video *webrtc.TrackLocalStaticSample

	if c.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}, "audio", "callkit")
		if err != nil {
			return nil, &AccessError{Reason: "audio track", Err: err}
		}
		audio = track
	}

	if c.Video {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		}, "video", "callkit")
		if err != nil {
			return nil, &AccessError{Reason: "video track", Err: err}
		}
		video = track
	}

	stream := NewStream(trackOrNil(audio), trackOrNil(video))

	go pump(ctx, stream, audio, video)

	return stream, nil
}

// trackOrNil avoids storing a typed nil in the Stream's interface fields.
func trackOrNil(t *webrtc.TrackLocalStaticSample) webrtc.TrackLocal {
	if t == nil {
		return nil
	}
	return t
}

// pump writes one frame per track per interval. Writes to an unbound track
// are no-ops, so the pump can run before negotiation completes.
func pump(ctx context.Context, stream *Stream, audio, video *webrtc.TrackLocalStaticSample) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if audio != nil && stream.AudioEnabled() {
				_ = audio.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: frameInterval})
			}
			if video != nil && stream.VideoEnabled() {
				_ = video.WriteSample(pionmedia.Sample{Data: []byte{0x00}, Duration: frameInterval})
			}

		case <-stream.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
