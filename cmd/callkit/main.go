// Callkit — CLI entry point.
//
// A terminal client for placing and receiving P2P video calls through a
// callrelay signaling server. Media is synthesized (Opus silence, blank
// VP8); the point of the CLI is exercising the signaling and connection
// lifecycle end to end.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-user, -server, -peer).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/mivton/callkit/internal/call"
	"github.com/mivton/callkit/internal/config"
	"github.com/mivton/callkit/internal/media"
	"github.com/mivton/callkit/internal/signaling"
	"github.com/mivton/callkit/internal/util"
)

var version = "dev"

// ringTimeout cancels an outgoing call nobody answers. The session core
// has no timeouts of its own; this is the integration layer's policy.
const ringTimeout = 45 * time.Second

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	user := flag.String("user", "", "Local user ID")
	name := flag.String("name", "", "Display name (defaults to user ID)")
	server := flag.String("server", "", "Relay WebSocket URL, e.g. ws://localhost:8787")
	peer := flag.String("peer", "", "Peer user ID to call immediately (omit to wait for calls)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println("Callkit — v" + version)
	pterm.Println()

	cfg := config.Config{
		Identity: config.Identity{ID: strings.TrimSpace(*user), Name: strings.TrimSpace(*name)},
		PeerID:   strings.TrimSpace(*peer),
		Debug:    *debugMode,
	}

	if cfg.Identity.ID == "" {
		cfg.Identity.ID = askText("Your user ID")
	}
	if cfg.Identity.Name == "" {
		cfg.Identity.Name = cfg.Identity.ID
	}

	relayURL, err := normalizeRelayURL(*server)
	for err != nil {
		relayURL, err = normalizeRelayURL(askText("Relay URL (e.g. ws://localhost:8787)"))
		if err != nil {
			util.LogWarning("%v", err)
		}
	}
	cfg.RelayURL = relayURL

	run(ctx, cfg)
}

// run connects to the relay, builds the call manager and drives the call
// loop until interrupted.
func run(ctx context.Context, cfg config.Config) {
	channel, err := signaling.Dial(ctx, cfg.RelayURL, cfg.Identity.ID)
	if err != nil {
		util.LogError("failed to reach relay: %v", err)
		os.Exit(1)
	}
	defer channel.Close()
	util.LogSuccess("connected to relay as %s", cfg.Identity.ID)

	self := signaling.UserInfo{ID: cfg.Identity.ID, Name: cfg.Identity.Name, Avatar: cfg.Identity.Avatar}
	mgr := call.NewManager(self, channel, &media.SyntheticSource{})

	type ring struct {
		callID string
		caller signaling.UserInfo
	}
	rings := make(chan ring, 1)
	ended := make(chan struct{}, 4)

	mgr.OnIncomingCall(func(callID string, caller signaling.UserInfo) {
		select {
		case rings <- ring{callID, caller}:
		default:
		}
	})
	mgr.OnConnected(func(callID string) {
		util.LogSuccess("call connected — hang up with Ctrl+C")
	})
	mgr.OnDurationTick(func(callID string, elapsed time.Duration) {
		util.LogDebug("call running for %s", elapsed.Round(time.Second))
	})
	mgr.OnEnded(func(callID string, reason call.EndReason, duration time.Duration) {
		switch reason {
		case call.ReasonDeclined:
			util.LogWarning("call declined")
		case call.ReasonBusy:
			util.LogWarning("peer is busy")
		default:
			util.LogInfo("call ended (duration %s)", duration.Round(time.Second))
		}
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	mgr.OnFailed(func(callID, message string) {
		util.LogError("call failed: %s", message)
		select {
		case ended <- struct{}{}:
		default:
		}
	})

	util.StartStatsReporter(ctx)

	if cfg.PeerID != "" {
		placeCall(ctx, mgr, cfg.PeerID, ended)
		return
	}

	util.LogInfo("waiting for incoming calls (Ctrl+C to quit)")
	for {
		select {
		case r := <-rings:
			answerRing(ctx, mgr, r.callID, r.caller)

		case <-ctx.Done():
			_ = mgr.End()
			return
		}
	}
}

// placeCall dials one peer and blocks until the call finishes or the user
// interrupts. An unanswered ring is cancelled after ringTimeout.
func placeCall(ctx context.Context, mgr *call.Manager, peerID string, ended <-chan struct{}) {
	if err := mgr.Call(ctx, signaling.UserInfo{ID: peerID}); err != nil {
		util.LogError("failed to place call: %v", err)
		os.Exit(1)
	}

	timeout := time.AfterFunc(ringTimeout, func() {
		if mgr.Phase() == call.PhaseRequesting {
			util.LogWarning("no answer after %s — cancelling", ringTimeout)
			_ = mgr.Cancel()
			os.Exit(0)
		}
	})
	defer timeout.Stop()

	select {
	case <-ended:
	case <-ctx.Done():
		if err := mgr.End(); err != nil {
			_ = mgr.Cancel()
		}
	}
}

// answerRing prompts the user for a ringing call and accepts or declines.
func answerRing(ctx context.Context, mgr *call.Manager, callID string, caller signaling.UserInfo) {
	if mgr.Phase() != call.PhaseRinging {
		return // ring already gone (caller cancelled)
	}

	accept, _ := pterm.DefaultInteractiveConfirm.
		WithDefaultText("Incoming call from " + caller.Name + " — accept?").
		Show()
	pterm.Println()

	if !accept {
		if err := mgr.Decline(); err != nil {
			util.LogDebug("decline: %v", err)
		}
		return
	}
	if err := mgr.Accept(ctx); err != nil {
		util.LogError("failed to accept call: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeRelayURL validates a relay URL and pins it to the /ws endpoint.
func normalizeRelayURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %q", raw)
	}
	scheme := "ws"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return scheme + "://" + u.Host + "/ws", nil
}

// askText prompts until a non-empty value is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}
		util.LogWarning("a value is required")
		pterm.Println()
	}
}
