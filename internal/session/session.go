// Package session implements the offer/answer negotiation state machine:
// one Session per remote caller, driving the media engine from a received
// offer to a complete, candidate-bearing answer.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/mirrorcast/internal/engine"
	"github.com/1ureka/mirrorcast/internal/protocol"
	"github.com/1ureka/mirrorcast/internal/util"
)

// DefaultGatherTimeout bounds the wait for end-of-candidates when Options
// leaves it unset.
const DefaultGatherTimeout = 5 * time.Second

// State is a negotiation state. States only ever move forward.
type State int

const (
	StateIdle State = iota
	StateRemoteDescriptionSet
	StateAnswerCreated
	StateLocalDescriptionSet
	StateGatheringComplete
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRemoteDescriptionSet:
		return "remote-description-set"
	case StateAnswerCreated:
		return "answer-created"
	case StateLocalDescriptionSet:
		return "local-description-set"
	case StateGatheringComplete:
		return "gathering-complete"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Options configures a Session.
type Options struct {
	PeerConfig    engine.PeerConfig
	GatherTimeout time.Duration
	Telemetry     Telemetry
	// OnStream is called for every inbound remote stream.
	OnStream func(sessionID string, s engine.Stream)
}

// Session negotiates a single offer. It exclusively owns its peer, which
// stays open after a successful answer until the connection ends or Close is
// called.
type Session struct {
	id   string
	eng  engine.Engine
	opts Options
	obs  *observer

	busy atomic.Bool

	mu      sync.Mutex
	state   State
	err     error
	peer    engine.Peer
	gate    *GatheringGate
	streams []engine.Stream
	cancel  context.CancelFunc
	closing bool

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates an idle session. No engine call is made until HandleOffer has
// validated its input.
func New(eng engine.Engine, opts Options) *Session {
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = DefaultGatherTimeout
	}
	if opts.Telemetry == nil {
		opts.Telemetry = LogTelemetry{}
	}

	s := &Session{
		id:     uuid.NewString(),
		eng:    eng,
		opts:   opts,
		closed: make(chan struct{}),
	}
	s.obs = newObserver(s.id, opts.Telemetry, s.addStream)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure reason once the session is Failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Streams returns the inbound streams reported so far.
func (s *Session) Streams() []engine.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Stream(nil), s.streams...)
}

// Closed is closed when the session has failed, its peer connection has
// ended, or Close was called.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// HandleOffer runs the whole negotiation for offerText and returns the local
// answer including every gathered candidate. Only the first call on a
// session runs; any other call returns ErrSessionBusy immediately.
//
// The wait for gathering is bounded by Options.GatherTimeout. When it
// expires, the answer gathered so far is returned if there is one. When ctx
// is done first, the session fails with ErrCancelled and its peer is released.
func (s *Session) HandleOffer(ctx context.Context, offerText string) (protocol.SessionDescription, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return protocol.SessionDescription{}, ErrSessionBusy
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return protocol.SessionDescription{}, s.fail(fmt.Errorf("%w: session closed", ErrCancelled))
	}
	s.cancel = cancel
	s.mu.Unlock()

	answer, err := s.negotiate(ctx, offerText)
	if err != nil {
		return protocol.SessionDescription{}, s.fail(err)
	}

	go s.watchPeer()
	return answer, nil
}

func (s *Session) negotiate(ctx context.Context, offerText string) (protocol.SessionDescription, error) {
	offer, err := protocol.ParseOffer(offerText)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := ctx.Err(); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	peer, err := s.eng.NewPeer(s.opts.PeerConfig)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		if cerr := peer.Close(); cerr != nil {
			util.LogDebug("[%s] releasing peer: %v", shortID(s.id), cerr)
		}
		return protocol.SessionDescription{}, fmt.Errorf("%w: session closed", ErrCancelled)
	}
	s.peer = peer
	s.mu.Unlock()
	s.obs.attach(peer)

	// 1. Remote offer.
	if err := await(ctx, func() error { return peer.SetRemoteDescription(offer) }); err != nil {
		return protocol.SessionDescription{}, stepError(ctx, ErrSetRemoteDescription, err)
	}
	s.transition(StateRemoteDescriptionSet)

	// 2. Answer.
	var answer protocol.SessionDescription
	if err := await(ctx, func() (err error) {
		answer, err = peer.CreateAnswer()
		return err
	}); err != nil {
		return protocol.SessionDescription{}, stepError(ctx, ErrCreateAnswer, err)
	}
	s.transition(StateAnswerCreated)

	// 3. Local answer. Gathering starts inside SetLocalDescription, so the
	// gate is armed first to never miss the end-of-candidates marker.
	gate := NewGatheringGate(func(r GateResult) {
		util.LogDebug("[%s] gathering gate resolved: %s", shortID(s.id), r)
	})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	s.obs.arm(gate)

	if err := await(ctx, func() error { return peer.SetLocalDescription(answer) }); err != nil {
		return protocol.SessionDescription{}, stepError(ctx, ErrSetLocalDescription, err)
	}
	s.transition(StateLocalDescriptionSet)

	// 4. Gathering.
	result := gate.Wait(ctx, s.opts.GatherTimeout)
	if err := ctx.Err(); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	local := peer.LocalDescription()
	switch {
	case result == GateTimedOut && local.IsZero():
		return protocol.SessionDescription{}, fmt.Errorf("%w after %s", ErrGatheringTimeout, s.opts.GatherTimeout)
	case result == GateTimedOut:
		util.LogWarning("[%s] gathering not finished after %s, answering with %d candidate(s) gathered so far",
			shortID(s.id), s.opts.GatherTimeout, len(gate.Candidates()))
	case local.IsZero():
		return protocol.SessionDescription{}, fmt.Errorf("%w: engine returned an empty local description", ErrSetLocalDescription)
	}
	s.transition(StateGatheringComplete)

	s.transition(StateDone)
	return local, nil
}

// stepError attributes a failed engine step to cancellation when ctx is done,
// and to the step otherwise.
func stepError(ctx context.Context, step, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
	}
	return fmt.Errorf("%w: %w", step, err)
}

// await runs one engine step on its own goroutine and resumes the caller
// through a one-shot channel, so a cancelled request never waits on the
// engine. A step abandoned this way completes into the buffered channel and
// is discarded.
func await(ctx context.Context, step func() error) error {
	done := make(chan error, 1)
	go func() { done <- step() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) transition(next State) {
	s.mu.Lock()
	prev := s.state
	if prev.Terminal() || next != prev+1 {
		s.mu.Unlock()
		util.LogError("[%s] refusing transition %s → %s", shortID(s.id), prev, next)
		return
	}
	s.state = next
	s.mu.Unlock()

	s.opts.Telemetry.Transition(s.id, prev, next)
}

// fail moves the session to Failed, resolves the gate and releases the peer.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	prev := s.state
	if prev.Terminal() {
		s.mu.Unlock()
		return err
	}
	s.state = StateFailed
	s.err = err
	gate, peer := s.gate, s.peer
	s.mu.Unlock()

	s.opts.Telemetry.Transition(s.id, prev, StateFailed)

	if gate != nil {
		gate.Cancel()
	}
	if peer != nil {
		if cerr := peer.Close(); cerr != nil {
			util.LogDebug("[%s] releasing peer: %v", shortID(s.id), cerr)
		}
	}
	s.markClosed()
	return err
}

// watchPeer closes the session once its connection ends.
func (s *Session) watchPeer() {
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()

	select {
	case <-peer.Closed():
		s.markClosed()
	case <-s.closed:
	}
}

func (s *Session) addStream(st engine.Stream) {
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.mu.Unlock()

	if s.opts.OnStream != nil {
		s.opts.OnStream(s.id, st)
	}
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Close aborts a running negotiation and releases the peer connection. A
// session closed before or during negotiation never publishes a peer.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	cancel, peer := s.cancel, s.peer
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	defer s.markClosed()

	if peer == nil {
		return nil
	}
	return peer.Close()
}
