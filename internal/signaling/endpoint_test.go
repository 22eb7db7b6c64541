package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/mirrorcast/internal/engine/enginetest"
	"github.com/1ureka/mirrorcast/internal/protocol"
	"github.com/1ureka/mirrorcast/internal/session"
)

const minimalOffer = "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n"

// Compile-time interface check.
var _ Sessions = (*fakeNegotiator)(nil)

// fakeNegotiator returns a fixed outcome and records what it was asked.
type fakeNegotiator struct {
	answer string
	err    error
	// block makes Negotiate wait for ctx to end.
	block bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeNegotiator) Negotiate(ctx context.Context, offerText string) (protocol.SessionDescription, error) {
	f.mu.Lock()
	f.calls = append(f.calls, offerText)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return protocol.SessionDescription{}, fmt.Errorf("%w: %w", session.ErrCancelled, ctx.Err())
	}
	if f.err != nil {
		return protocol.SessionDescription{}, f.err
	}
	return protocol.SessionDescription{Kind: protocol.KindAnswer, SDP: f.answer}, nil
}

func (f *fakeNegotiator) Len() int { return 0 }

func (f *fakeNegotiator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func postOffer(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/send_offer", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEndpointReturnsAnswer(t *testing.T) {
	neg := &fakeNegotiator{answer: "v=0\r\nanswer\r\n"}
	ep := NewEndpoint(neg, 0, 0)

	rec := postOffer(t, ep, minimalOffer)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "v=0\r\nanswer\r\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get(ErrorHeader); got != "" {
		t.Errorf("%s = %q on success", ErrorHeader, got)
	}
	if calls := neg.Calls(); len(calls) != 1 || calls[0] != minimalOffer {
		t.Errorf("negotiator saw %q", calls)
	}
}

func TestEndpointFailuresKeepStatusOK(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"malformed", fmt.Errorf("%w: empty offer", session.ErrMalformedInput), "malformed-input"},
		{"busy", session.ErrSessionBusy, "session-busy"},
		{"gathering", session.ErrGatheringTimeout, "gathering-timeout"},
		{"create answer", fmt.Errorf("%w: %w", session.ErrCreateAnswer, errors.New("no codecs")), "create-answer"},
		{"limit", session.ErrTooManySessions, "too-many-sessions"},
		{"unknown", errors.New("disk on fire"), "internal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postOffer(t, NewEndpoint(&fakeNegotiator{err: tc.err}, 0, 0), minimalOffer)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get(ErrorHeader); got != tc.wantKind {
				t.Errorf("%s = %q, want %q", ErrorHeader, got, tc.wantKind)
			}
			if want := "negotiation failed: " + tc.err.Error(); rec.Body.String() != want {
				t.Errorf("body = %q, want %q", rec.Body.String(), want)
			}
		})
	}
}

func TestEndpointRejectsOtherMethods(t *testing.T) {
	neg := &fakeNegotiator{}
	req := httptest.NewRequest(http.MethodGet, "/send_offer", nil)
	rec := httptest.NewRecorder()

	NewEndpoint(neg, 0, 0).ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if rec.Body.String() != "method not allowed" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(neg.Calls()) != 0 {
		t.Error("negotiator called for a GET")
	}
}

func TestEndpointCapsBody(t *testing.T) {
	neg := &fakeNegotiator{answer: "unused"}
	rec := postOffer(t, NewEndpoint(neg, 0, 16), minimalOffer+strings.Repeat("a=x\r\n", 10))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(ErrorHeader); got != "malformed-input" {
		t.Errorf("%s = %q", ErrorHeader, got)
	}
	if !strings.Contains(rec.Body.String(), "exceeds 16 bytes") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(neg.Calls()) != 0 {
		t.Error("oversized offer reached the negotiator")
	}
}

func TestEndpointTimeoutCancelsNegotiation(t *testing.T) {
	ep := NewEndpoint(&fakeNegotiator{block: true}, 50*time.Millisecond, 0)

	start := time.Now()
	resp := ep.Respond(context.Background(), minimalOffer)
	if time.Since(start) > time.Second {
		t.Fatal("timeout not applied")
	}
	if resp.ErrKind != "cancelled" {
		t.Errorf("ErrKind = %q, want cancelled", resp.ErrKind)
	}
}

func TestEndpointWithRegistry(t *testing.T) {
	eng := enginetest.New(enginetest.Script{Candidates: 2})
	reg := session.NewRegistry(eng, session.Options{GatherTimeout: time.Second}, 0)
	defer reg.Close()

	srv := httptest.NewServer(NewServer(reg, Options{MaxOfferBytes: 64 * 1024}).Handler())
	defer srv.Close()

	post := func(body string) (*http.Response, string) {
		t.Helper()
		resp, err := http.Post(srv.URL+"/send_offer", "text/plain", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return resp, string(data)
	}

	resp, body := post(minimalOffer)
	if resp.StatusCode != http.StatusOK || resp.Header.Get(ErrorHeader) != "" {
		t.Fatalf("status %d, error %q, body %q", resp.StatusCode, resp.Header.Get(ErrorHeader), body)
	}
	if !strings.HasPrefix(body, "v=0") {
		t.Errorf("answer = %q", body)
	}
	if protocol.CountCandidates(body) != 2 {
		t.Errorf("answer carries %d candidates", protocol.CountCandidates(body))
	}

	resp, body = post("")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(ErrorHeader) != "malformed-input" {
		t.Errorf("empty offer kind = %q, body %q", resp.Header.Get(ErrorHeader), body)
	}
	if eng.PeerCount() != 1 {
		t.Errorf("empty offer reached the engine")
	}
}
