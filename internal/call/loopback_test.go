package call

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mivton/callkit/internal/signaling"
)

// loopbackPair wires two managers back-to-back over an in-memory pipe,
// with fake peer links standing in for the WebRTC layer.
type loopbackPair struct {
	alice, bob         *testRigEnd
	pipeAlice, pipeBob *signaling.PipeEnd
}

type testRigEnd struct {
	mgr    *Manager
	source *fakeSource
	peers  *peerRecorder
}

func newLoopbackPair(t *testing.T) *loopbackPair {
	t.Helper()
	pa, pb := signaling.NewPipe("alice", "bob")
	t.Cleanup(pa.Close)
	t.Cleanup(pb.Close)

	build := func(id string, pipe *signaling.PipeEnd) *testRigEnd {
		end := &testRigEnd{source: &fakeSource{}, peers: &peerRecorder{}}
		end.mgr = NewManager(
			signaling.UserInfo{ID: id, Name: id},
			pipe,
			end.source,
			WithPeerFactory(end.peers.factory),
			WithTickInterval(5*time.Millisecond),
		)
		return end
	}

	return &loopbackPair{
		alice:     build("alice", pa),
		bob:       build("bob", pb),
		pipeAlice: pa,
		pipeBob:   pb,
	}
}

func waitPhase(t *testing.T, mgr *Manager, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return mgr.Phase() == want },
		2*time.Second, 5*time.Millisecond, "waiting for phase %s", want)
}

// TestLoopbackCallBothSidesConverge walks a full call between two managers
// over the pipe: ring, accept, offer/answer, connect, and a one-sided
// hangup that still brings both sides back to idle with resources
// released.
func TestLoopbackCallBothSidesConverge(t *testing.T) {
	pair := newLoopbackPair(t)

	// Bob auto-accepts when the ring surfaces.
	pair.bob.mgr.OnIncomingCall(func(callID string, caller signaling.UserInfo) {
		go func() {
			if err := pair.bob.mgr.Accept(context.Background()); err != nil {
				t.Errorf("accept: %v", err)
			}
		}()
	})

	bobEnded := make(chan EndReason, 1)
	pair.bob.mgr.OnEnded(func(_ string, reason EndReason, _ time.Duration) { bobEnded <- reason })

	require.NoError(t, pair.alice.mgr.Call(context.Background(), signaling.UserInfo{ID: "bob"}))

	// Ring → accept → offer → answer all flow through the pipe.
	waitPhase(t, pair.alice.mgr, PhaseNegotiating)
	waitPhase(t, pair.bob.mgr, PhaseNegotiating)

	require.Eventually(t, func() bool {
		return pair.alice.peers.last() != nil && pair.bob.peers.last() != nil
	}, 2*time.Second, 5*time.Millisecond)

	alicePeer := pair.alice.peers.last()
	bobPeer := pair.bob.peers.last()

	// The responder received the offer and answered it.
	require.Eventually(t, func() bool {
		bobPeer.mu.Lock()
		defer bobPeer.mu.Unlock()
		return len(bobPeer.remoteDescs) == 1 && len(bobPeer.localDescs) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		alicePeer.mu.Lock()
		defer alicePeer.mu.Unlock()
		return len(alicePeer.remoteDescs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Both peer connections report connected.
	alicePeer.fire(webrtc.PeerConnectionStateConnected)
	bobPeer.fire(webrtc.PeerConnectionStateConnected)
	waitPhase(t, pair.alice.mgr, PhaseConnected)
	waitPhase(t, pair.bob.mgr, PhaseConnected)

	// Only Alice hangs up; Bob must converge to idle from the signal.
	require.NoError(t, pair.alice.mgr.End())
	waitPhase(t, pair.alice.mgr, PhaseIdle)
	waitPhase(t, pair.bob.mgr, PhaseIdle)

	select {
	case reason := <-bobEnded:
		assert.Equal(t, ReasonEnded, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never saw the call end")
	}

	assert.True(t, pair.alice.source.lastStream().Closed(), "alice released media")
	assert.True(t, pair.bob.source.lastStream().Closed(), "bob released media")
	assert.Equal(t, 1, alicePeer.closeCount())
	assert.Equal(t, 1, bobPeer.closeCount())
}

// TestLoopbackCancelClearsCalleeRing verifies a cancelled outgoing call
// clears the remote ring via the translated "ended" event.
func TestLoopbackCancelClearsCalleeRing(t *testing.T) {
	pair := newLoopbackPair(t)

	rang := make(chan struct{}, 1)
	pair.bob.mgr.OnIncomingCall(func(string, signaling.UserInfo) { rang <- struct{}{} })

	require.NoError(t, pair.alice.mgr.Call(context.Background(), signaling.UserInfo{ID: "bob"}))

	select {
	case <-rang:
	case <-time.After(2 * time.Second):
		t.Fatal("bob never rang")
	}

	require.NoError(t, pair.alice.mgr.Cancel())
	waitPhase(t, pair.bob.mgr, PhaseIdle)
	waitPhase(t, pair.alice.mgr, PhaseIdle)
}

// TestLoopbackDecline verifies the caller is notified and releases media
// when the callee declines.
func TestLoopbackDecline(t *testing.T) {
	pair := newLoopbackPair(t)

	pair.bob.mgr.OnIncomingCall(func(string, signaling.UserInfo) {
		go func() {
			if err := pair.bob.mgr.Decline(); err != nil {
				t.Errorf("decline: %v", err)
			}
		}()
	})

	aliceEnded := make(chan EndReason, 1)
	pair.alice.mgr.OnEnded(func(_ string, reason EndReason, _ time.Duration) { aliceEnded <- reason })

	require.NoError(t, pair.alice.mgr.Call(context.Background(), signaling.UserInfo{ID: "bob"}))

	select {
	case reason := <-aliceEnded:
		assert.Equal(t, ReasonDeclined, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("alice never saw the decline")
	}

	waitPhase(t, pair.alice.mgr, PhaseIdle)
	assert.True(t, pair.alice.source.lastStream().Closed())
	assert.Equal(t, 0, pair.alice.peers.created(), "decline before any negotiation")
}
