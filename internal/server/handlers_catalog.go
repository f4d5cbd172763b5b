package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/go-chi/chi/v5"
)

// maxMappingBody bounds a saved-mapping request body.
const maxMappingBody = 1 << 20

// healthTimeout bounds the database ping of the health check.
const healthTimeout = 2 * time.Second

// handleHealth reports "ok", or "degraded" when the database does not answer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"db_status": "memory",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Runs != nil {
		resp["runs"] = s.deps.Runs.LimiterStatus()
	}
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["db_status"] = "disconnected: " + err.Error()
		} else {
			resp["db_status"] = "connected"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Templates.List())
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tmpl, ok := s.deps.Templates.Find(id)
	if !ok {
		err := fmt.Errorf("%w: %s", errTemplateNotFound, id)
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	configs, err := s.deps.Mappings.List(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if configs == nil {
		configs = []mappings.Config{}
	}
	writeJSON(w, http.StatusOK, configs)
}

// saveMappingRequest is the body of POST /mappings.
type saveMappingRequest struct {
	Name     string           `json:"name"`
	Mappings []mappings.Entry `json:"mappings"`
}

func (s *Server) handleSaveMapping(w http.ResponseWriter, r *http.Request) {
	var req saveMappingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMappingBody)).Decode(&req); err != nil {
		err = fmt.Errorf("%w: %v", errInvalidMapping, err)
		s.respondError(w, r, err, statusFor(err))
		return
	}

	cfg, err := s.deps.Mappings.Save(r.Context(), req.Name, req.Mappings)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Mappings.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
