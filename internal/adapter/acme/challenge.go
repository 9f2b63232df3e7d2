package acme

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/http01"
)

var _ challenge.Provider = (*challengeServer)(nil)

type keyAuthorization struct {
	domain  string
	keyAuth string
}

// challengeServer answers HTTP-01 challenges for every order in flight from
// one long-lived listener. Present and CleanUp only touch the token table.
type challengeServer struct {
	addr string

	mu     sync.RWMutex
	tokens map[string]keyAuthorization

	startMu  sync.Mutex
	listener net.Listener
	srv      *http.Server
}

func newChallengeServer(addr string) *challengeServer {
	if addr == "" {
		addr = ":80"
	}
	return &challengeServer{addr: addr, tokens: make(map[string]keyAuthorization)}
}

// Present implements challenge.Provider.
func (s *challengeServer) Present(domain, token, keyAuth string) error {
	if err := s.start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.tokens[token] = keyAuthorization{domain: strings.ToLower(domain), keyAuth: keyAuth}
	s.mu.Unlock()
	return nil
}

// CleanUp implements challenge.Provider.
func (s *challengeServer) CleanUp(_, token, _ string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}

func (s *challengeServer) start() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http-01 listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http-01 challenge server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}(s.srv)
	slog.Info("http-01 challenge server listening", "addr", ln.Addr().String())
	return nil
}

func (s *challengeServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Get(http01.ChallengePath("{token}"), s.serveToken)
	return r
}

// serveToken answers only when the Host header names the domain the token
// was presented for.
func (s *challengeServer) serveToken(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ka, ok := s.tokens[chi.URLParam(r, "token")]
	s.mu.RUnlock()

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if !ok || !strings.EqualFold(host, ka.domain) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(ka.keyAuth))
}

// Addr returns the bound address, or "" before the first challenge.
func (s *challengeServer) Addr() string {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the listener if it was started.
func (s *challengeServer) Close() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Close()
	s.srv, s.listener = nil, nil
	return err
}
