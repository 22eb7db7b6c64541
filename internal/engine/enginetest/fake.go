// Package enginetest provides a scripted in-process engine for negotiation
// tests. It behaves like a media engine from the core's point of view:
// descriptions are applied, an answer is produced, and candidates are pushed
// asynchronously after the local description is set.
package enginetest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/mirrorcast/internal/engine"
	"github.com/1ureka/mirrorcast/internal/protocol"
)

// AnswerSDP is the description every fake peer answers with, before
// candidates are appended.
const AnswerSDP = "v=0\r\n" +
	"o=- 2 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n"

// Script controls how every peer of an Engine behaves.
type Script struct {
	NewPeerErr      error
	SetRemoteErr    error
	CreateAnswerErr error
	SetLocalErr     error

	// Candidates is the number of candidates emitted after the local
	// description is set, each GatherDelay apart.
	Candidates  int
	GatherDelay time.Duration
	// WithholdEndOfCandidates suppresses the nil end-of-candidates signal.
	WithholdEndOfCandidates bool
	// DropLocalDescription makes LocalDescription always return zero.
	DropLocalDescription bool

	// BlockSetRemote, when non-nil, makes SetRemoteDescription wait until it
	// is closed.
	BlockSetRemote chan struct{}

	// Streams are reported as inbound once gathering starts.
	Streams []engine.Stream

	// OnNewPeer runs after each peer is created, before NewPeer returns.
	OnNewPeer func()
}

// Compile-time interface checks.
var (
	_ engine.Engine = (*Engine)(nil)
	_ engine.Peer   = (*Peer)(nil)
)

// Engine hands out scripted peers and remembers them.
type Engine struct {
	script Script

	mu    sync.Mutex
	peers []*Peer
}

// New creates a fake engine running script for every peer.
func New(script Script) *Engine {
	return &Engine{script: script}
}

func (e *Engine) NewPeer(cfg engine.PeerConfig) (engine.Peer, error) {
	if e.script.NewPeerErr != nil {
		return nil, e.script.NewPeerErr
	}

	p := &Peer{
		script: e.script,
		Config: cfg,
		closed: make(chan struct{}),
	}

	e.mu.Lock()
	e.peers = append(e.peers, p)
	e.mu.Unlock()

	if e.script.OnNewPeer != nil {
		e.script.OnNewPeer()
	}
	return p, nil
}

// Peers returns every peer created so far.
func (e *Engine) Peers() []*Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Peer(nil), e.peers...)
}

// PeerCount returns the number of peers created so far.
func (e *Engine) PeerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers)
}

// Peer is a scripted peer connection.
type Peer struct {
	script Script
	Config engine.PeerConfig

	mu          sync.Mutex
	calls       []string
	remote      protocol.SessionDescription
	local       protocol.SessionDescription
	candidates  []string
	onCandidate func(*engine.Candidate)
	onStream    func(engine.Stream)
	onEvent     func(engine.Event)
	added       []engine.Candidate

	closed    chan struct{}
	closeOnce sync.Once
}

func (p *Peer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

// Calls returns the engine operations invoked on this peer, in order.
func (p *Peer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Remote returns the remote description that was applied.
func (p *Peer) Remote() protocol.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// IsClosed reports whether Close was called.
func (p *Peer) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *Peer) SetRemoteDescription(desc protocol.SessionDescription) error {
	p.record("SetRemoteDescription")

	if p.script.BlockSetRemote != nil {
		select {
		case <-p.script.BlockSetRemote:
		case <-p.closed:
			return errors.New("peer closed")
		}
	}
	if p.script.SetRemoteErr != nil {
		return p.script.SetRemoteErr
	}
	if desc.Kind != protocol.KindOffer {
		return fmt.Errorf("expected offer, got %s", desc.Kind)
	}

	p.mu.Lock()
	p.remote = desc
	p.mu.Unlock()
	return nil
}

func (p *Peer) CreateAnswer() (protocol.SessionDescription, error) {
	p.record("CreateAnswer")

	if p.script.CreateAnswerErr != nil {
		return protocol.SessionDescription{}, p.script.CreateAnswerErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote.IsZero() {
		return protocol.SessionDescription{}, errors.New("no remote description")
	}
	return protocol.SessionDescription{Kind: protocol.KindAnswer, SDP: AnswerSDP}, nil
}

func (p *Peer) SetLocalDescription(desc protocol.SessionDescription) error {
	p.record("SetLocalDescription")

	if p.script.SetLocalErr != nil {
		return p.script.SetLocalErr
	}

	p.mu.Lock()
	p.local = desc
	p.mu.Unlock()

	go p.gather()
	return nil
}

// gather mimics asynchronous candidate gathering on an engine goroutine.
func (p *Peer) gather() {
	p.emitEvent(engine.Event{Kind: engine.EventGatheringState, State: "gathering"})

	p.mu.Lock()
	onStream := p.onStream
	p.mu.Unlock()
	for _, s := range p.script.Streams {
		if onStream != nil {
			onStream(s)
		}
	}

	for i := 0; i < p.script.Candidates; i++ {
		select {
		case <-time.After(p.script.GatherDelay):
		case <-p.closed:
			return
		}

		line := fmt.Sprintf("candidate:%d 1 udp 2130706431 127.0.0.1 %d typ host", i+1, 50000+i)
		mid := "0"
		idx := uint16(0)

		p.mu.Lock()
		p.candidates = append(p.candidates, line)
		fn := p.onCandidate
		p.mu.Unlock()

		if fn != nil {
			fn(&engine.Candidate{Candidate: line, SDPMid: &mid, SDPMLineIndex: &idx})
		}
	}

	if p.script.WithholdEndOfCandidates {
		return
	}

	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	if fn != nil {
		fn(nil)
	}
	p.emitEvent(engine.Event{Kind: engine.EventGatheringState, State: "complete"})
}

func (p *Peer) emitEvent(ev engine.Event) {
	p.mu.Lock()
	fn := p.onEvent
	p.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (p *Peer) LocalDescription() protocol.SessionDescription {
	p.record("LocalDescription")

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.script.DropLocalDescription || p.local.IsZero() {
		return protocol.SessionDescription{}
	}

	sdp := p.local.SDP
	for _, c := range p.candidates {
		sdp += "a=" + c + "\r\n"
	}
	return protocol.SessionDescription{Kind: p.local.Kind, SDP: sdp}
}

func (p *Peer) OnICECandidate(fn func(*engine.Candidate)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *Peer) OnInboundStream(fn func(engine.Stream)) {
	p.mu.Lock()
	p.onStream = fn
	p.mu.Unlock()
}

func (p *Peer) OnEvent(fn func(engine.Event)) {
	p.mu.Lock()
	p.onEvent = fn
	p.mu.Unlock()
}

func (p *Peer) AddICECandidate(c engine.Candidate) error {
	p.record("AddICECandidate")

	p.mu.Lock()
	p.added = append(p.added, c)
	p.mu.Unlock()
	return nil
}

func (p *Peer) Closed() <-chan struct{} {
	return p.closed
}

// Hangup simulates the remote side going away after a successful handshake.
func (p *Peer) Hangup() {
	p.emitEvent(engine.Event{Kind: engine.EventConnectionState, State: "closed"})
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *Peer) Close() error {
	p.record("Close")
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
