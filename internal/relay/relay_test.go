package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mivton/callkit/internal/signaling"
)

// startRelay boots a relay on a random loopback port and returns its ws URL.
func startRelay(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer()
	port, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
}

func dialUser(t *testing.T, url, userID string) *signaling.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := signaling.Dial(ctx, url, userID)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestRouteTranslatesEvents(t *testing.T) {
	srv, url := startRelay(t)

	alice := dialUser(t, url, "alice")
	bob := dialUser(t, url, "bob")

	require.Eventually(t, func() bool {
		return srv.Hub().Online("alice") && srv.Hub().Online("bob")
	}, 2*time.Second, 10*time.Millisecond)

	got := make(chan signaling.Envelope, 1)
	bob.On(signaling.EventIncoming, func(from string, data json.RawMessage) {
		got <- signaling.Envelope{From: from, Data: data}
	})

	require.NoError(t, alice.Send(signaling.EventInitiate, "bob", signaling.InitiatePayload{
		CallID: "alice_bob_1",
		Caller: signaling.UserInfo{ID: "alice", Name: "Alice"},
	}))

	select {
	case env := <-got:
		assert.Equal(t, "alice", env.From, "relay stamps the sender")
		var p signaling.InitiatePayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, "alice_bob_1", p.CallID, "callID passes through untouched")
	case <-time.After(2 * time.Second):
		t.Fatal("incoming event never arrived")
	}
}

func TestOfflineTargetGetsErrorBack(t *testing.T) {
	_, url := startRelay(t)
	alice := dialUser(t, url, "alice")

	errCh := make(chan signaling.ErrorPayload, 1)
	alice.On(signaling.EventError, func(from string, data json.RawMessage) {
		var p signaling.ErrorPayload
		_ = json.Unmarshal(data, &p)
		errCh <- p
	})

	require.NoError(t, alice.Send(signaling.EventInitiate, "nobody", signaling.InitiatePayload{
		CallID: "alice_nobody_1",
		Caller: signaling.UserInfo{ID: "alice"},
	}))

	select {
	case p := <-errCh:
		assert.Equal(t, "user unavailable", p.Message)
		assert.Equal(t, "alice_nobody_1", p.CallID, "error echoes the callID")
	case <-time.After(2 * time.Second):
		t.Fatal("error event never arrived")
	}
}

func TestSpoofedFromIsOverwritten(t *testing.T) {
	srv, url := startRelay(t)
	alice := dialUser(t, url, "alice")
	bob := dialUser(t, url, "bob")

	require.Eventually(t, func() bool {
		return srv.Hub().Online("alice") && srv.Hub().Online("bob")
	}, 2*time.Second, 10*time.Millisecond)

	got := make(chan string, 1)
	bob.On(signaling.EventEnded, func(from string, data json.RawMessage) {
		got <- from
	})

	// The client API cannot set From, but the hub must stamp it regardless
	// of what arrives on the wire; end → ended exercises the translation.
	require.NoError(t, alice.Send(signaling.EventEnd, "bob", signaling.EndPayload{CallID: "c1"}))

	select {
	case from := <-got:
		assert.Equal(t, "alice", from)
	case <-time.After(2 * time.Second):
		t.Fatal("ended event never arrived")
	}
}

func TestUnroutableEventDropped(t *testing.T) {
	srv, url := startRelay(t)
	alice := dialUser(t, url, "alice")
	bob := dialUser(t, url, "bob")

	require.Eventually(t, func() bool {
		return srv.Hub().Online("alice") && srv.Hub().Online("bob")
	}, 2*time.Second, 10*time.Millisecond)

	got := make(chan struct{}, 1)
	bob.On(signaling.EventError, func(string, json.RawMessage) { got <- struct{}{} })
	bob.On(signaling.EventIncoming, func(string, json.RawMessage) { got <- struct{}{} })

	// Inbound-only names are not valid outbound events.
	require.NoError(t, alice.Send(signaling.EventIncoming, "bob", signaling.InitiatePayload{CallID: "c1"}))

	select {
	case <-got:
		t.Fatal("unroutable event was delivered")
	case <-time.After(200 * time.Millisecond):
	}
}
