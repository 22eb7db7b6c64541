// Package signaling exposes the negotiation core over HTTP: the raw-text
// offer endpoint, a single-exchange WebSocket variant, the browser assets and
// a health probe.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/1ureka/mirrorcast/internal/protocol"
	"github.com/1ureka/mirrorcast/internal/session"
)

// ErrorHeader carries the short error kind of a failed negotiation.
const ErrorHeader = "X-Negotiation-Error"

// Negotiator answers one offer. *session.Registry implements it.
type Negotiator interface {
	Negotiate(ctx context.Context, offerText string) (protocol.SessionDescription, error)
}

// Compile-time interface check.
var _ Negotiator = (*session.Registry)(nil)

// Response is the outcome of one offer, independent of the transport.
type Response struct {
	// Body is the answer text, or a diagnostic line when ErrKind is set.
	Body    string
	ErrKind string
}

// Failed reports whether the negotiation failed.
func (r Response) Failed() bool { return r.ErrKind != "" }

// Endpoint turns an offer body into an answer body.
type Endpoint struct {
	neg      Negotiator
	timeout  time.Duration
	maxBytes int64
}

// NewEndpoint creates an endpoint. timeout bounds each negotiation on top of
// the request lifetime (0 disables it); maxBytes caps request bodies
// (0 disables it).
func NewEndpoint(neg Negotiator, timeout time.Duration, maxBytes int64) *Endpoint {
	return &Endpoint{neg: neg, timeout: timeout, maxBytes: maxBytes}
}

// Respond runs one negotiation. It never fails: errors become a diagnostic
// body plus an error kind.
func (e *Endpoint) Respond(ctx context.Context, body string) Response {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	answer, err := e.neg.Negotiate(ctx, body)
	if err != nil {
		return failure(err)
	}
	return Response{Body: answer.SDP}
}

func failure(err error) Response {
	return Response{
		Body:    "negotiation failed: " + err.Error(),
		ErrKind: session.ErrorKind(err),
	}
}

// ServeHTTP handles POST /send_offer. The status is 200 for every POST, the
// body is either the answer or a diagnostic line, and failures set
// ErrorHeader.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := e.readBody(w, r)
	if err != nil {
		writeResponse(w, failure(err))
		return
	}

	writeResponse(w, e.Respond(r.Context(), body))
}

func (e *Endpoint) readBody(w http.ResponseWriter, r *http.Request) (string, error) {
	reader := io.Reader(r.Body)
	if e.maxBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, e.maxBytes)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", fmt.Errorf("%w: offer exceeds %d bytes", protocol.ErrMalformedInput, tooLarge.Limit)
		}
		return "", fmt.Errorf("%w: reading offer: %v", session.ErrCancelled, err)
	}
	return string(data), nil
}

func writeResponse(w http.ResponseWriter, resp Response) {
	if resp.Failed() {
		w.Header().Set(ErrorHeader, resp.ErrKind)
	}
	writeText(w, http.StatusOK, resp.Body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
