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

// Stats is the process-wide negotiation/media counter.
var Stats = &stats{}

type stats struct {
	Offers     atomic.Int64 // offers received since process start
	Answered   atomic.Int64 // offers answered with a complete (or best-effort) description
	Failed     atomic.Int64 // negotiations that ended in a Failed state
	Candidates atomic.Int64 // local ICE candidates gathered
	Streams    atomic.Int64 // inbound remote streams
	BytesRecv  atomic.Int64 // RTP payload bytes read from inbound streams
	BytesSent  atomic.Int64 // RTP payload bytes written to the local audio track
}

func (s *stats) AddOffer()     { s.Offers.Add(1) }
func (s *stats) AddAnswered()  { s.Answered.Add(1) }
func (s *stats) AddFailed()    { s.Failed.Add(1) }
func (s *stats) AddCandidate() { s.Candidates.Add(1) }
func (s *stats) AddStream()    { s.Streams.Add(1) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Offers, Answered, Failed, Candidates, Streams int64
	BytesRecv, BytesSent                          int64
}

// Snapshot returns the current counter values.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		Offers:     s.Offers.Load(),
		Answered:   s.Answered.Load(),
		Failed:     s.Failed.Load(),
		Candidates: s.Candidates.Load(),
		Streams:    s.Streams.Load(),
		BytesRecv:  s.BytesRecv.Load(),
		BytesSent:  s.BytesSent.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs negotiation and media
// statistics every 10 seconds, skipping idle intervals. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if line, ok := formatDelta(prev, cur, reportInterval); ok {
					pterm.DefaultLogger.Info(line)
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatDelta renders the difference between two snapshots. The second
// return value is false when nothing noteworthy happened in the interval.
func formatDelta(prev, cur Snapshot, interval time.Duration) (string, bool) {
	secs := interval.Seconds()
	inS := float64(cur.BytesRecv-prev.BytesRecv) / secs
	outS := float64(cur.BytesSent-prev.BytesSent) / secs
	offers := cur.Offers - prev.Offers
	answered := cur.Answered - prev.Answered
	failed := cur.Failed - prev.Failed

	if offers == 0 && answered == 0 && failed == 0 && inS <= 10 && outS <= 10 {
		return "", false
	}

	return fmt.Sprintf("Audio out: %s/s | In: %s/s | Offers: %2d (%d✓ %d✗)",
		formatBytes(outS),
		formatBytes(inS),
		offers,
		answered,
		failed,
	), true
}
