package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/repolens/repolens/internal/fetch"
	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/store"
	"go.uber.org/zap"
)

type prepareRequest struct {
	RepoURL string `json:"repo_url"`
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, _, err := fetch.ParseRepoURL(req.RepoURL); err != nil {
		s.respondError(w, http.StatusBadRequest, "not a valid GitHub repository URL")
		return
	}
	sessionID, err := s.orchestrator.Start(r.Context(), req.RepoURL)
	if err != nil {
		s.logger.Error("failed to start indexing", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to start indexing")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("session lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	resp := map[string]interface{}{"status": session.Status}
	// Suggestions are only meaningful once indexing finished.
	if session.Status == models.StatusReady {
		resp["ai_suggestions"] = session.AISuggestions
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionCount, err := s.store.CountSessions(ctx)
	if err != nil {
		s.logger.Error("status: count sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.store.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessionCount,
		"chunks":   chunkCount,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
