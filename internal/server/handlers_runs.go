package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/mdo/internal/backend"
	"github.com/JonMunkholm/mdo/internal/export"
	"github.com/JonMunkholm/mdo/internal/logging"
	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/report"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/go-chi/chi/v5"
)

// maxFilesPerRun bounds the request body together with the per-file size limit.
const maxFilesPerRun = 20

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// handleStartRun accepts repeated "files" parts and an optional "mapping"
// JSON array, and answers 202 with the new run id.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Run.MaxFileSize*maxFilesPerRun)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidMultipart, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var specs []runapi.FileSpec
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &specs); err != nil {
			s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidMapping, err), http.StatusBadRequest)
			return
		}
	}

	var files []mapping.File
	for _, fh := range r.MultipartForm.File["files"] {
		if s.cfg.Run.MaxFileSize > 0 && fh.Size > s.cfg.Run.MaxFileSize {
			err := fmt.Errorf("%w: %s", backend.ErrFileTooLarge, fh.Filename)
			s.respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		f, err := fh.Open()
		if err != nil {
			s.respondError(w, r, fmt.Errorf("open %s: %w", fh.Filename, err), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.respondError(w, r, fmt.Errorf("read %s: %w", fh.Filename, err), http.StatusBadRequest)
			return
		}
		files = append(files, mapping.NewFile(fh.Filename, data))
	}

	rec, err := s.deps.Runs.StartRun(r.Context(), files, specs)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	logging.WithFields(r.Context(), "run_id", rec.ID).Info("run accepted", "files", len(files), "specs", len(specs))
	writeJSON(w, http.StatusAccepted, runapi.StartResponse{Status: "run started", RunID: rec.ID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", backend.DefaultListLimit)

	recs, err := s.deps.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	out := make([]runapi.RunSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, rec.Wire())
}

// handleRunReport downloads the issues of a complete run as CSV.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.completeRun(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(rec.ID)))
	if err := report.WriteCSV(w, rec.Issues); err != nil {
		// Headers are already sent.
		logging.FromContext(r.Context()).Error("report write failed", "run_id", rec.ID, "error", err)
	}
}

// handleExportRun publishes a complete, ready run to object storage.
func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		s.respondError(w, r, errExportDisabled, statusFor(errExportDisabled))
		return
	}
	rec, ok := s.completeRun(w, r)
	if !ok {
		return
	}

	res, err := s.deps.Exporter.Export(r.Context(), export.Bundle{
		RunID:  rec.ID,
		Files:  rec.Mapping,
		Issues: rec.Issues,
	})
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// completeRun loads the run named in the URL and requires it to be complete.
func (s *Server) completeRun(w http.ResponseWriter, r *http.Request) (backend.Record, bool) {
	rec, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return backend.Record{}, false
	}
	switch rec.Status {
	case runapi.StatusComplete:
		return rec, true
	case runapi.StatusFailed:
		s.respondError(w, r, fmt.Errorf("run failed: %s", rec.Error), http.StatusConflict)
	default:
		err := fmt.Errorf("%w: status is %s", backend.ErrRunNotFinished, rec.Status)
		s.respondError(w, r, err, statusFor(err))
	}
	return backend.Record{}, false
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
