package session

import (
	"context"
	"sync"
	"time"

	"github.com/1ureka/mirrorcast/internal/engine"
)

// GateResult is the resolution of a GatheringGate.
type GateResult int

const (
	GatePending GateResult = iota
	GateComplete
	GateTimedOut
)

func (r GateResult) String() string {
	switch r {
	case GatePending:
		return "pending"
	case GateComplete:
		return "complete"
	case GateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// GatheringGate is a one-shot completion signal for ICE gathering. Only the
// end-of-candidates marker (a nil candidate) resolves it to GateComplete;
// timeout and cancellation resolve it to GateTimedOut. The first resolution
// wins and every later signal is ignored.
type GatheringGate struct {
	mu         sync.Mutex
	result     GateResult
	candidates []engine.Candidate
	done       chan struct{}
	onResolve  func(GateResult)
}

// NewGatheringGate returns an armed, pending gate. onResolve, if set, runs
// exactly once with the final result.
func NewGatheringGate(onResolve func(GateResult)) *GatheringGate {
	return &GatheringGate{
		done:      make(chan struct{}),
		onResolve: onResolve,
	}
}

// Signal records a gathered candidate, or resolves the gate when c is nil.
func (g *GatheringGate) Signal(c *engine.Candidate) {
	if c == nil {
		g.resolve(GateComplete)
		return
	}

	g.mu.Lock()
	if g.result == GatePending {
		g.candidates = append(g.candidates, *c)
	}
	g.mu.Unlock()
}

// Cancel resolves a pending gate to GateTimedOut.
func (g *GatheringGate) Cancel() {
	g.resolve(GateTimedOut)
}

// Wait blocks until the gate resolves, timeout elapses or ctx is done, and
// returns the final result. Timeout and cancellation are not errors; the
// caller decides whether what was gathered so far is usable.
func (g *GatheringGate) Wait(ctx context.Context, timeout time.Duration) GateResult {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-g.done:
	case <-timer.C:
		g.resolve(GateTimedOut)
	case <-ctx.Done():
		g.resolve(GateTimedOut)
	}

	return g.Result()
}

// Done is closed once the gate has resolved.
func (g *GatheringGate) Done() <-chan struct{} {
	return g.done
}

// Result returns the current state of the gate.
func (g *GatheringGate) Result() GateResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

// Candidates returns the candidates recorded before resolution.
func (g *GatheringGate) Candidates() []engine.Candidate {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]engine.Candidate(nil), g.candidates...)
}

func (g *GatheringGate) resolve(r GateResult) {
	g.mu.Lock()
	if g.result != GatePending {
		g.mu.Unlock()
		return
	}
	g.result = r
	close(g.done)
	g.mu.Unlock()

	if g.onResolve != nil {
		g.onResolve(r)
	}
}
