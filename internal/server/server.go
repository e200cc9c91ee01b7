// Package server provides the HTTP and websocket API for Repolens.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/repolens/repolens/internal/chat"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/indexer"
	"github.com/repolens/repolens/internal/store"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Repolens API.
type Server struct {
	store        store.Store
	orchestrator *indexer.Orchestrator
	controller   *chat.Controller
	config       *config.ServerConfig
	session      *config.SessionConfig
	logger       *zap.Logger
	server       *http.Server
	janitorStop  chan struct{}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	st store.Store,
	orchestrator *indexer.Orchestrator,
	controller *chat.Controller,
	cfg *config.ServerConfig,
	session *config.SessionConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:        st,
		orchestrator: orchestrator,
		controller:   controller,
		config:       cfg,
		session:      session,
		logger:       logger,
		janitorStop:  make(chan struct{}),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Post("/api/v1/chat/prepare", s.handlePrepare)
	r.Get("/api/v1/chat/status/{sessionID}", s.handleStatus)
	r.Get("/api/v1/chat/ws", s.handleChat)
	r.Get("/api/v1/status", s.handleServiceStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the expiry janitor and the HTTP server, blocking until the
// server stops.
func (s *Server) Start() error {
	go s.runJanitor()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and the janitor.
func (s *Server) Stop(ctx context.Context) error {
	close(s.janitorStop)
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// runJanitor periodically removes sessions older than the retention window,
// along with their history and chunks.
func (s *Server) runJanitor() {
	ticker := time.NewTicker(s.session.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-s.janitorStop:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-s.session.TTL())
			removed, err := s.store.DeleteExpired(context.Background(), cutoff)
			if err != nil {
				s.logger.Error("session sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info("expired sessions removed", zap.Int64("count", removed))
			}
		}
	}
}
