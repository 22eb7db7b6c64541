package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/mirrorcast/internal/engine/enginetest"
)

func newTestRegistry(script enginetest.Script, max int) (*Registry, *enginetest.Engine) {
	eng := enginetest.New(script)
	reg := NewRegistry(eng, Options{
		GatherTimeout: time.Second,
		Telemetry:     &recordingTelemetry{},
	}, max)
	return reg, eng
}

func TestRegistryKeepsAnsweredSessionUntilHangup(t *testing.T) {
	reg, eng := newTestRegistry(enginetest.Script{Candidates: 1}, 0)

	answer, err := reg.Negotiate(context.Background(), minimalOffer)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if !strings.HasPrefix(answer.SDP, "v=0") {
		t.Errorf("answer = %q", answer.SDP)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}

	eng.Peers()[0].Hangup()
	waitFor(t, "session to be unregistered", func() bool { return reg.Len() == 0 })
}

func TestRegistryDropsFailedSession(t *testing.T) {
	reg, eng := newTestRegistry(enginetest.Script{CreateAnswerErr: errors.New("no codec")}, 0)

	_, err := reg.Negotiate(context.Background(), minimalOffer)
	if !errors.Is(err, ErrCreateAnswer) {
		t.Fatalf("err = %v, want ErrCreateAnswer", err)
	}
	if reg.Len() != 0 {
		t.Errorf("failed session still registered")
	}
	if !eng.Peers()[0].IsClosed() {
		t.Error("peer not released")
	}
}

func TestRegistryMalformedOffer(t *testing.T) {
	reg, eng := newTestRegistry(enginetest.Script{}, 0)

	if _, err := reg.Negotiate(context.Background(), "   "); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("err = %v, want ErrMalformedInput", err)
	}
	if eng.PeerCount() != 0 || reg.Len() != 0 {
		t.Error("malformed offer reached the engine or stayed registered")
	}
}

func TestRegistrySessionLimit(t *testing.T) {
	reg, eng := newTestRegistry(enginetest.Script{}, 2)

	for i := 0; i < 2; i++ {
		if _, err := reg.Negotiate(context.Background(), minimalOffer); err != nil {
			t.Fatalf("Negotiate #%d failed: %v", i, err)
		}
	}

	_, err := reg.Negotiate(context.Background(), minimalOffer)
	if !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("err = %v, want ErrTooManySessions", err)
	}
	if eng.PeerCount() != 2 {
		t.Errorf("rejected offer created a peer")
	}

	// A freed slot is reusable.
	eng.Peers()[0].Hangup()
	waitFor(t, "slot to be freed", func() bool { return reg.Len() == 1 })

	if _, err := reg.Negotiate(context.Background(), minimalOffer); err != nil {
		t.Fatalf("Negotiate after hangup failed: %v", err)
	}
}

func TestRegistryCloseReleasesEverything(t *testing.T) {
	reg, eng := newTestRegistry(enginetest.Script{}, 0)

	for i := 0; i < 3; i++ {
		if _, err := reg.Negotiate(context.Background(), minimalOffer); err != nil {
			t.Fatal(err)
		}
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after Close", reg.Len())
	}
	for i, p := range eng.Peers() {
		if !p.IsClosed() {
			t.Errorf("peer %d still open", i)
		}
	}

	if _, err := reg.Negotiate(context.Background(), minimalOffer); !errors.Is(err, ErrCancelled) {
		t.Errorf("err after Close = %v, want ErrCancelled", err)
	}
}

func TestRegistryCloseBetweenOpenAndOffer(t *testing.T) {
	reg, eng := newTestRegistry(enginetest.Script{}, 0)

	s, err := reg.open()
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.HandleOffer(context.Background(), minimalOffer); !errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", err)
	}
	if eng.PeerCount() != 0 {
		t.Errorf("created %d peers after Close", eng.PeerCount())
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d", reg.Len())
	}
}

func TestRegistryGet(t *testing.T) {
	reg, _ := newTestRegistry(enginetest.Script{}, 0)

	if _, err := reg.Negotiate(context.Background(), minimalOffer); err != nil {
		t.Fatal(err)
	}

	reg.mu.Lock()
	var id string
	for k := range reg.sessions {
		id = k
	}
	reg.mu.Unlock()

	s, ok := reg.Get(id)
	if !ok || s.State() != StateDone {
		t.Fatalf("Get(%q) = %v, %v", id, s, ok)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get returned a session for an unknown id")
	}
}

func TestRegistryConcurrentOffersAreIndependent(t *testing.T) {
	reg, eng := newTestRegistry(enginetest.Script{Candidates: 3, GatherDelay: time.Millisecond}, 0)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Negotiate(context.Background(), minimalOffer)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Negotiate failed: %v", err)
		}
	}
	if eng.PeerCount() != callers {
		t.Errorf("PeerCount() = %d, want %d", eng.PeerCount(), callers)
	}
	if reg.Len() != callers {
		t.Errorf("Len() = %d, want %d", reg.Len(), callers)
	}
}
