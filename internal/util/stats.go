package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide call/signaling counter.
var Stats = &stats{}

type stats struct {
	CallsPlaced    atomic.Int64 // outgoing calls initiated since process start
	CallsReceived  atomic.Int64 // incoming calls surfaced since process start
	CallsConnected atomic.Int64 // calls that reached the connected state
	CallsFailed    atomic.Int64 // calls that ended in a failure
	MsgsSent       atomic.Int64 // signaling messages written to the channel
	MsgsRecv       atomic.Int64 // signaling messages read from the channel
}

func (s *stats) AddPlaced()    { s.CallsPlaced.Add(1) }
func (s *stats) AddReceived()  { s.CallsReceived.Add(1) }
func (s *stats) AddConnected() { s.CallsConnected.Add(1) }
func (s *stats) AddFailed()    { s.CallsFailed.Add(1) }
func (s *stats) AddSent()      { s.MsgsSent.Add(1) }
func (s *stats) AddRecv()      { s.MsgsRecv.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs call statistics
// every 30 seconds. Quiet periods produce no output. It stops when ctx
// is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevConn int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.MsgsSent.Load()
				recv := Stats.MsgsRecv.Load()
				conn := Stats.CallsConnected.Load()

				if sent != prevSent || recv != prevRecv || conn != prevConn {
					pterm.DefaultLogger.Info(formatStats(sent-prevSent, recv-prevRecv, conn))
				}

				prevSent = sent
				prevRecv = recv
				prevConn = conn

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(sent, recv, connected int64) string {
	return fmt.Sprintf("Signaling: %3d↑ %3d↓ | Calls connected: %d", sent, recv, connected)
}
