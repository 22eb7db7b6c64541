package session

import (
	"sync"

	"github.com/1ureka/mirrorcast/internal/engine"
	"github.com/1ureka/mirrorcast/internal/util"
)

// Telemetry is a log-only sink for everything a peer reports. Implementations
// must not block and have no influence on negotiation.
type Telemetry interface {
	Event(sessionID string, ev engine.Event)
	Candidate(sessionID string, c *engine.Candidate)
	Stream(sessionID string, s engine.Stream)
	Transition(sessionID string, from, to State)
}

// Compile-time interface check.
var _ Telemetry = LogTelemetry{}

// LogTelemetry writes engine notifications to the debug log and feeds the
// process-wide counters.
type LogTelemetry struct{}

func (LogTelemetry) Event(id string, ev engine.Event) {
	switch ev.Kind {
	case engine.EventDataChannel:
		util.LogDebug("[%s] %s: %s", shortID(id), ev.Kind, ev.Label)
	case engine.EventNegotiationNeeded:
		util.LogDebug("[%s] %s (ignored, no renegotiation)", shortID(id), ev.Kind)
	default:
		util.LogDebug("[%s] %s: %s", shortID(id), ev.Kind, ev.State)
	}
}

func (LogTelemetry) Candidate(id string, c *engine.Candidate) {
	if c == nil {
		util.LogDebug("[%s] end of candidates", shortID(id))
		return
	}
	util.Stats.AddCandidate()
	util.LogDebug("[%s] local candidate: %s", shortID(id), c.Candidate)
}

func (LogTelemetry) Stream(id string, s engine.Stream) {
	util.Stats.AddStream()
	util.LogInfo("[%s] inbound %s stream %s (%s)", shortID(id), s.Kind, s.ID, s.Codec)
}

func (LogTelemetry) Transition(id string, from, to State) {
	util.LogDebug("[%s] %s → %s", shortID(id), from, to)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// observer splits peer notifications into telemetry and the two signals the
// state machine consumes: candidates go to the armed gate, streams go to the
// session.
type observer struct {
	sessionID string
	sink      Telemetry
	onStream  func(engine.Stream)

	mu   sync.Mutex
	gate *GatheringGate
}

func newObserver(sessionID string, sink Telemetry, onStream func(engine.Stream)) *observer {
	return &observer{sessionID: sessionID, sink: sink, onStream: onStream}
}

// attach registers the observer's callbacks on p.
func (o *observer) attach(p engine.Peer) {
	p.OnICECandidate(o.candidate)
	p.OnInboundStream(o.stream)
	p.OnEvent(o.event)
}

// arm routes subsequent candidate signals to g.
func (o *observer) arm(g *GatheringGate) {
	o.mu.Lock()
	o.gate = g
	o.mu.Unlock()
}

func (o *observer) candidate(c *engine.Candidate) {
	o.sink.Candidate(o.sessionID, c)

	o.mu.Lock()
	g := o.gate
	o.mu.Unlock()

	if g != nil {
		g.Signal(c)
	}
}

func (o *observer) stream(s engine.Stream) {
	o.sink.Stream(o.sessionID, s)
	if o.onStream != nil {
		o.onStream(s)
	}
}

func (o *observer) event(ev engine.Event) {
	o.sink.Event(o.sessionID, ev)
}
