package session

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1ureka/mirrorcast/internal/engine"
)

func candidate(n int) *engine.Candidate {
	return &engine.Candidate{Candidate: "candidate:" + strconv.Itoa(n) + " 1 udp 1 127.0.0.1 5000 typ host"}
}

// TestGateResolvesOnceOnEndOfCandidates verifies that N candidate signals
// followed by one nil signal produce exactly one Complete resolution, and
// that signals after resolution are ignored.
func TestGateResolvesOnceOnEndOfCandidates(t *testing.T) {
	for _, n := range []int{0, 1, 5, 32} {
		var resolutions atomic.Int32
		g := NewGatheringGate(func(r GateResult) {
			if r != GateComplete {
				t.Errorf("resolved with %s, want complete", r)
			}
			resolutions.Add(1)
		})

		for i := 0; i < n; i++ {
			g.Signal(candidate(i))
			if g.Result() != GatePending {
				t.Fatalf("gate resolved by a non-nil candidate")
			}
		}
		g.Signal(nil)

		// Late signals are no-ops.
		g.Signal(nil)
		g.Signal(candidate(9))
		g.Cancel()

		if got := g.Wait(context.Background(), time.Second); got != GateComplete {
			t.Errorf("n=%d: Wait = %s, want complete", n, got)
		}
		if got := resolutions.Load(); got != 1 {
			t.Errorf("n=%d: %d resolutions, want 1", n, got)
		}
		if got := len(g.Candidates()); got != n {
			t.Errorf("n=%d: recorded %d candidates", n, got)
		}
	}
}

func TestGateTimesOut(t *testing.T) {
	var resolutions atomic.Int32
	g := NewGatheringGate(func(GateResult) { resolutions.Add(1) })
	g.Signal(candidate(1))

	start := time.Now()
	if got := g.Wait(context.Background(), 30*time.Millisecond); got != GateTimedOut {
		t.Fatalf("Wait = %s, want timed-out", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait took %s", elapsed)
	}

	g.Signal(nil)
	if g.Result() != GateTimedOut {
		t.Error("end-of-candidates after timeout changed the result")
	}
	if resolutions.Load() != 1 {
		t.Errorf("%d resolutions, want 1", resolutions.Load())
	}
	if len(g.Candidates()) != 1 {
		t.Errorf("expected the candidate gathered before the timeout to be kept")
	}
}

func TestGateCancelledByContext(t *testing.T) {
	g := NewGatheringGate(nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if got := g.Wait(ctx, time.Minute); got != GateTimedOut {
		t.Fatalf("Wait = %s, want timed-out", got)
	}
	select {
	case <-g.Done():
	default:
		t.Error("Done not closed after cancellation")
	}
}

func TestGateCancelBeforeWait(t *testing.T) {
	g := NewGatheringGate(nil)
	g.Cancel()

	if got := g.Wait(context.Background(), time.Minute); got != GateTimedOut {
		t.Fatalf("Wait = %s, want timed-out", got)
	}
}

func TestGateConcurrentSignals(t *testing.T) {
	var resolutions atomic.Int32
	g := NewGatheringGate(func(GateResult) { resolutions.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			g.Signal(candidate(i % 10))
		}(i)
		go func() {
			defer wg.Done()
			g.Signal(nil)
		}()
	}
	wg.Wait()

	if g.Result() != GateComplete {
		t.Errorf("Result = %s, want complete", g.Result())
	}
	if resolutions.Load() != 1 {
		t.Errorf("%d resolutions, want 1", resolutions.Load())
	}
}

func TestGateResultString(t *testing.T) {
	if GatePending.String() != "pending" || GateComplete.String() != "complete" || GateTimedOut.String() != "timed-out" {
		t.Error("unexpected gate result names")
	}
}
