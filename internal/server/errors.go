package server

// errors.go provides unified error response handling.
//
// Every error is logged with its technical detail and request ID, then
// mapped through backend.MapError and returned to the client as a user
// message with an action and a support code. API routes answer in JSON,
// pages in plain text.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/mdo/internal/backend"
	"github.com/JonMunkholm/mdo/internal/export"
	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	errTemplateNotFound = errors.New("template not found")
	errExportDisabled   = errors.New("export is not configured")
	errInvalidMapping   = errors.New("invalid mapping")
	errInvalidMultipart = errors.New("invalid multipart form")
)

var rateLimited = backend.UserMessage{
	Message: "Too many requests",
	Action:  "Please wait a moment before trying again",
	Code:    "RATE001",
}

// statusFor picks the HTTP status for an error returned by a handler dependency.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, backend.ErrNotFound),
		errors.Is(err, mappings.ErrNotFound),
		errors.Is(err, errTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrFileTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, backend.ErrNoFiles),
		errors.Is(err, mappings.ErrEmptyName),
		errors.Is(err, errInvalidMapping),
		errors.Is(err, errInvalidMultipart):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrRunNotFinished), errors.Is(err, export.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, errExportDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, backend.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := backend.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
	} else {
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

func respondErrorJSON(w http.ResponseWriter, msg backend.UserMessage, statusCode int) {
	writeJSON(w, statusCode, runapi.ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// wantsJSON reports whether the client should get a JSON error body.
// API routes always do.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, runapi.APIPrefix+"/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
