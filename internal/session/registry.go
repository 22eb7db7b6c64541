package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/mirrorcast/internal/engine"
	"github.com/1ureka/mirrorcast/internal/protocol"
	"github.com/1ureka/mirrorcast/internal/util"
)

// Registry hosts many concurrent, independent sessions, one per offer. A
// session stays registered while its peer connection is alive.
type Registry struct {
	eng  engine.Engine
	opts Options
	max  int

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates a registry building sessions from eng. maxSessions
// caps the number of live sessions; 0 means unlimited.
func NewRegistry(eng engine.Engine, opts Options, maxSessions int) *Registry {
	return &Registry{
		eng:      eng,
		opts:     opts,
		max:      maxSessions,
		sessions: make(map[string]*Session),
	}
}

// Negotiate answers one offer with a fresh session. On failure the session
// is discarded; on success it is kept until its connection ends.
func (r *Registry) Negotiate(ctx context.Context, offerText string) (protocol.SessionDescription, error) {
	util.Stats.AddOffer()

	s, err := r.open()
	if err != nil {
		util.Stats.AddFailed()
		util.LogWarning("rejected offer: %v", err)
		return protocol.SessionDescription{}, err
	}

	util.LogInfo("[%s] offer received (%d bytes)", shortID(s.ID()), len(offerText))

	answer, err := s.HandleOffer(ctx, offerText)
	if err != nil {
		r.remove(s.ID())
		util.Stats.AddFailed()
		util.LogWarning("[%s] negotiation failed: %v", shortID(s.ID()), err)
		return protocol.SessionDescription{}, err
	}

	util.Stats.AddAnswered()
	util.LogSuccess("[%s] answered with %d candidate(s)", shortID(s.ID()), protocol.CountCandidates(answer.SDP))

	go r.watch(s)
	return answer, nil
}

func (r *Registry) open() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: registry closed", ErrCancelled)
	}
	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManySessions, r.max)
	}

	s := New(r.eng, r.opts)
	r.sessions[s.ID()] = s
	return s, nil
}

// watch unregisters s once its connection has ended.
func (r *Registry) watch(s *Session) {
	<-s.Closed()
	if r.remove(s.ID()) {
		util.LogInfo("[%s] session ended", shortID(s.ID()))
	}
}

func (r *Registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close rejects further offers and closes every live session.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
