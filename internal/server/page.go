package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/mdo/internal/backend"
	"github.com/JonMunkholm/mdo/internal/report"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/validation"
	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
)

// handleRunPage renders the readiness page of one run.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := runPage(rec).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// readiness is the one-line verdict shown at the top of the run page.
func readiness(rec backend.Record) (string, string) {
	switch rec.Status {
	case runapi.StatusPending, runapi.StatusRunning:
		return "pending", "Validation in progress."
	case runapi.StatusFailed:
		return "failed", "Validation failed: " + rec.Error
	}
	sum := validation.Summarize(rec.Issues)
	if !sum.Ready() {
		return "blocked", fmt.Sprintf("Not ready: %d blocking issue(s) must be resolved.", sum.Blockers)
	}
	return "ready", "Ready for export."
}

// runPage renders a run as a self-contained HTML document. A pending run
// refreshes itself every few seconds.
func runPage(rec backend.Record) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		class, verdict := readiness(rec)
		sum := validation.Summarize(rec.Issues)
		e := templ.EscapeString

		var err error
		p := func(format string, args ...any) {
			if err == nil {
				_, err = fmt.Fprintf(w, format, args...)
			}
		}

		p("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		if class == "pending" {
			p(`<meta http-equiv="refresh" content="3">`)
		}
		p("<title>Run %s</title>", e(rec.ID))
		p(`<style>.ready{color:#15803d}.blocked,.failed{color:#b91c1c}.pending{color:#a16207}table{border-collapse:collapse}td,th{border:1px solid #ddd;padding:4px 8px;text-align:left}</style>`)
		p("</head><body>")
		p("<h1>Run %s</h1>", e(rec.ID))
		p(`<p class="%s"><strong>%s</strong></p>`, class, e(verdict))
		p("<p>Status: %s. Files: %d. Blockers: %d. Warnings: %d. Info: %d.</p>",
			e(string(rec.Status)), len(rec.Files), sum.Blockers, sum.Warnings, sum.Infos)

		if rec.Status == runapi.StatusComplete {
			href := runapi.APIPrefix + "/runs/" + rec.ID + "/report.csv"
			p(`<p><a href="%s" download="%s">Download report</a></p>`, e(href), e(report.Filename(rec.ID)))
		}

		if len(rec.Issues) > 0 {
			p("<table><thead><tr>")
			for _, h := range report.Header {
				p("<th>%s</th>", e(h))
			}
			p("</tr></thead><tbody>")
			for _, is := range rec.Issues {
				row := ""
				if is.RowIndex != nil {
					row = strconv.Itoa(*is.RowIndex)
				}
				p(`<tr class="%s">`, e(severityClass(is.Severity)))
				for _, cell := range []string{is.ID, string(is.Severity), is.FileName, row, is.ColumnName, is.RuleID, is.Description} {
					p("<td>%s</td>", e(cell))
				}
				p("</tr>")
			}
			p("</tbody></table>")
		}
		p("</body></html>\n")
		return err
	})
}

func severityClass(s validation.Severity) string {
	switch s {
	case validation.Blocker:
		return "blocked"
	case validation.Warning:
		return "pending"
	}
	return ""
}
