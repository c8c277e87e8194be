package transport

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mivton/callkit/internal/config"
	"github.com/mivton/callkit/internal/media"
)

// newTestPeer returns a Peer with a local synthetic track attached, so the
// generated SDP carries a media section.
func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	src := &media.SyntheticSource{}
	stream, err := src.Acquire(context.Background(), config.MediaConstraints{Audio: true})
	require.NoError(t, err)
	t.Cleanup(stream.Close)

	for _, track := range stream.Tracks() {
		require.NoError(t, p.AddTrack(track))
	}
	return p
}

func TestOfferAnswerExchange(t *testing.T) {
	caller := newTestPeer(t)
	callee := newTestPeer(t)

	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, caller.SetLocalDescription(offer))
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, caller.SignalingState())

	require.NoError(t, callee.SetRemoteDescription(offer))
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, callee.SetLocalDescription(answer))

	require.NoError(t, caller.SetRemoteDescription(answer))
	assert.Equal(t, webrtc.SignalingStateStable, caller.SignalingState())
}

func TestCandidateBufferedBeforeRemoteDescription(t *testing.T) {
	caller := newTestPeer(t)
	callee := newTestPeer(t)

	// Candidate arrives before any remote description: must be buffered,
	// not rejected.
	init := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host"}
	require.NoError(t, callee.AddRemoteCandidate(init))

	callee.mu.Lock()
	buffered := len(callee.pending)
	callee.mu.Unlock()
	assert.Equal(t, 1, buffered)

	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, caller.SetLocalDescription(offer))
	require.NoError(t, callee.SetRemoteDescription(offer))

	callee.mu.Lock()
	defer callee.mu.Unlock()
	assert.Empty(t, callee.pending, "buffer flushed once the remote description is set")
	assert.True(t, callee.haveRemote)
}

func TestCandidateAddedDirectlyAfterRemoteDescription(t *testing.T) {
	caller := newTestPeer(t)
	callee := newTestPeer(t)

	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, caller.SetLocalDescription(offer))
	require.NoError(t, callee.SetRemoteDescription(offer))

	init := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host"}
	require.NoError(t, callee.AddRemoteCandidate(init))

	callee.mu.Lock()
	defer callee.mu.Unlock()
	assert.Empty(t, callee.pending, "no buffering after the remote description")
}

func TestCloseIdempotent(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "second close is harmless")

	select {
	case <-p.Done():
	default:
		t.Fatal("Done gate not closed after Close")
	}
}
