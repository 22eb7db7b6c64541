package signaling

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/1ureka/mirrorcast/internal/config"
	"github.com/1ureka/mirrorcast/internal/session"
	"github.com/1ureka/mirrorcast/internal/util"
)

const shutdownTimeout = 5 * time.Second

// Sessions is the negotiation core as seen by the server.
type Sessions interface {
	Negotiator
	Len() int
}

// Compile-time interface check.
var _ Sessions = (*session.Registry)(nil)

// Options configures a Server.
type Options struct {
	Listen string
	TLS    config.TLSConfig
	// Assets is the browser page. Nil disables asset routes.
	Assets             fs.FS
	AllowedOrigins     []string
	NegotiationTimeout time.Duration
	MaxOfferBytes      int64
}

// Server is the embedded HTTP(S) server hosting the signaling routes.
type Server struct {
	opts     Options
	sessions Sessions
	endpoint *Endpoint

	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates a server answering offers through sessions.
func NewServer(sessions Sessions, opts Options) *Server {
	s := &Server{
		opts:     opts,
		sessions: sessions,
		endpoint: NewEndpoint(sessions, opts.NegotiationTimeout, opts.MaxOfferBytes),
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return s
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/send_offer", s.endpoint)
	mux.Handle("/ws", &wsHandler{endpoint: s.endpoint})
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.opts.Assets != nil {
		mux.Handle("/", &assetHandler{files: s.opts.Assets})
	}

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		ExposedHeaders: []string{ErrorHeader},
	})
	return c.Handler(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, fmt.Sprintf("ok sessions=%d", s.sessions.Len()))
}

// Listen binds the configured address. Returns the bound address.
func (s *Server) Listen() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.opts.Listen, err)
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Serve serves on the listener from Listen until ctx is done, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	errCh := make(chan error, 1)
	go func() {
		if s.opts.TLS.Enabled() {
			errCh <- s.httpSrv.ServeTLS(s.listener, s.opts.TLS.CertFile, s.opts.TLS.KeyFile)
		} else {
			errCh <- s.httpSrv.Serve(s.listener)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("signaling server failed: %w", err)

	case <-ctx.Done():
		util.LogInfo("Shutting down signaling server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("signaling server shutdown: %w", err)
		}
		return nil
	}
}

// Scheme returns "https" when TLS is enabled, "http" otherwise.
func (s *Server) Scheme() string {
	if s.opts.TLS.Enabled() {
		return "https"
	}
	return "http"
}
