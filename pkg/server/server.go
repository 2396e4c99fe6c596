// Package server provides the management HTTP server with graceful startup
// and shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nimburion/rediswrapper/pkg/observability/logger"
)

const shutdownTimeout = 30 * time.Second

// Server wraps http.Server with configurable timeouts and graceful lifecycle management.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     logger.Logger
	config     Config

	mu       sync.Mutex
	listener net.Listener
}

// Config holds configuration for the HTTP server. Port 0 picks a free port.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new Server serving handler.
func NewServer(cfg Config, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		handler: handler,
		logger:  log,
		config:  cfg,
	}
}

// Start listens on the configured port and serves until ctx is cancelled,
// then shuts down gracefully. It returns early if the listener cannot be
// opened or serving fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting server", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits up to 30 seconds for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	addr := s.Addr()
	s.logger.Info("shutting down server", "addr", addr)

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server shutdown complete", "addr", addr)
	return nil
}
