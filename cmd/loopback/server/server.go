// Package server provides the importable HTTP server of the loopback demo.
// Each session it creates streams synthetic shaky video between two
// in-process PeerConnections and stabilizes it in the receiver's
// interceptor chain. This allows E2E tests to programmatically start/stop
// the server without running main().
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/thesyncim/vstab/pkg/vstab"
)

// Config holds server configuration options.
type Config struct {
	Addr         string        // Listen address (e.g., ":8080" or ":0" for random port)
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout

	// Stabilizer is the initial configuration of every session.
	Stabilizer vstab.Config
	FrameSize  image.Point
	FPS        int

	// MaxSessions bounds concurrently running sessions.
	MaxSessions int

	Logger *slog.Logger
}

// DefaultConfig returns a configuration suitable for testing.
// Uses ":0" to bind to a random available port.
func DefaultConfig() Config {
	return Config{
		Addr:         ":0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Stabilizer:   vstab.DefaultConfig(),
		FrameSize:    image.Pt(320, 180),
		FPS:          30,
		MaxSessions:  4,
	}
}

// Server is an importable HTTP server for the stabilization loopback demo.
type Server struct {
	cfg        Config
	log        *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool

	sessionsMu sync.Mutex
	sessions   map[string]*Session
}

// NewServer creates a new server with the given configuration.
// The server is not started until Start() is called.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Stabilizer.Validate(); err != nil {
		return nil, fmt.Errorf("stabilizer config: %w", err)
	}
	if cfg.FrameSize.X <= 0 || cfg.FrameSize.Y <= 0 {
		return nil, fmt.Errorf("invalid frame size %v", cfg.FrameSize)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", cfg.FPS)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[string]*Session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /sessions/{id}/frame.png", s.handleFrame)
	mux.HandleFunc("POST /sessions/{id}/config", s.handleConfig)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Start begins listening and serving HTTP requests.
// Returns the actual address the server is listening on (useful when port is 0).
// This method is non-blocking - the server runs in a goroutine.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "error", err)
		}
	}()

	return s.addr, nil
}

// Shutdown gracefully shuts down the server and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	err := s.httpServer.Shutdown(ctx)

	s.sessionsMu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.sessionsMu.Unlock()
	for _, sess := range sessions {
		err = errors.Join(err, sess.Close())
	}
	return err
}

// Addr returns the address the server is listening on.
// Returns empty string if server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

var errTooManySessions = errors.New("too many sessions")

// NewSession starts a loopback session and registers it.
func (s *Server) NewSession() (*Session, error) {
	s.sessionsMu.Lock()
	full := s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions
	s.sessionsMu.Unlock()
	if full {
		return nil, errTooManySessions
	}

	sess, err := newSession(s.cfg, s.log)
	if err != nil {
		return nil, err
	}
	s.sessionsMu.Lock()
	s.sessions[sess.ID()] = sess
	s.sessionsMu.Unlock()
	s.log.Info("session started", "session", sess.ID())
	return sess, nil
}

// Session looks up a running session.
func (s *Server) Session(id string) (*Session, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// CloseSession stops and forgets a session.
func (s *Server) CloseSession(id string) bool {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
	if !ok {
		return false
	}
	if err := sess.Close(); err != nil {
		s.log.Warn("session close", "session", id, "error", err)
	}
	return true
}
