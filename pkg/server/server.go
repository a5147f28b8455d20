// Package server exposes the trigger API: run execution, live progress,
// run history, and vault extraction and archive passes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/archive"
	"github.com/framelight/deckhand/pkg/browser"
	"github.com/framelight/deckhand/pkg/extract"
	"github.com/framelight/deckhand/pkg/history"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/security/downloads"
	"github.com/framelight/deckhand/pkg/workflow"
)

const maxBodySize = 1 << 20 // 1MB

// Workflows is the run registry surface the API serves. *workflow.Runner
// implements it.
type Workflows interface {
	Start(req workflow.Request) (*workflow.Run, error)
	Get(runID string) (*workflow.Run, bool)
	List() []*workflow.Run
	Cancel(runID string) bool
}

// Subscriber taps the progress bus for one run's live events.
type Subscriber interface {
	Subscribe(runID string) (<-chan progress.Event, func())
}

// History is the persistence surface behind the API. A nil History disables
// run archival lookups and extraction snapshots.
type History interface {
	Run(id string) (history.RunRecord, error)
	RecentRuns(limit int) ([]history.RunRecord, error)
	SaveExtraction(history.ExtractionRecord) error
	SaveAsset(history.AssetRecord) error
}

// Extractor enumerates vault folder contents.
type Extractor interface {
	All(ctx context.Context, page playwright.Page, folders []string) (*extract.Result, error)
}

// Archiver downloads matching vault files and mirrors them to storage.
type Archiver interface {
	Archive(ctx context.Context, page playwright.Page, folder string, patterns []string, destDir string) (*archive.Result, error)
}

// PageBroker hands an authenticated page to fn. *browser.Manager implements
// it.
type PageBroker interface {
	WithPage(ctx context.Context, opts browser.PageOptions, fn func(page playwright.Page) error) error
}

// Deps collects the API's collaborators.
type Deps struct {
	Runner    Workflows
	Bus       Subscriber
	History   History
	Extractor Extractor
	Archiver  Archiver
	Browsers  PageBroker

	// Token, when set, gates every route except /health behind bearer auth.
	Token string
	// Version is reported by /health.
	Version string
	// Downloads resolves archive destinations against the download root. A
	// nil guard rejects archive requests outright.
	Downloads *downloads.Guard
}

type server struct {
	deps   Deps
	logger *logging.Logger
}

// NewHandler builds the API router.
func NewHandler(deps Deps) http.Handler {
	logger, _ := logging.NewLogger("server")
	s := &server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/workflow/execute", s.handleExecute)
		r.Get("/workflow/progress/{runID}", s.handleProgress)
		r.Get("/workflow/runs", s.handleListRuns)
		r.Get("/workflow/runs/{runID}", s.handleGetRun)
		r.Post("/workflow/runs/{runID}/cancel", s.handleCancel)
		r.Post("/extract", s.handleExtract)
		r.Post("/archive", s.handleArchive)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.deps.Version,
	})
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	var req workflow.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	run, err := s.deps.Runner.Start(req)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}

	s.logger.Infof("run %s accepted: project=%s steps=%d", run.ID, run.ProjectURL, len(run.Steps))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  run.ID,
		"status": run.Status,
	})
}

// runsResponse pairs the live registry with persisted runs that are no
// longer in it.
type runsResponse struct {
	Runs    []*workflow.Run `json:"runs"`
	History []archivedRun   `json:"history"`
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", v)
			return
		}
		limit = n
	}

	live := s.deps.Runner.List()
	resp := runsResponse{Runs: live, History: []archivedRun{}}

	if s.deps.History != nil {
		records, err := s.deps.History.RecentRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading run history: %v", err)
			return
		}
		seen := make(map[string]bool, len(live))
		for _, run := range live {
			seen[run.ID] = true
		}
		for _, rec := range records {
			if seen[rec.ID] {
				continue
			}
			resp.History = append(resp.History, toArchivedRun(rec))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if run, ok := s.deps.Runner.Get(runID); ok {
		writeJSON(w, http.StatusOK, run)
		return
	}

	if s.deps.History != nil {
		rec, err := s.deps.History.Run(runID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, toArchivedRun(rec))
			return
		case !errors.Is(err, history.ErrNotFound):
			httpError(w, http.StatusInternalServerError, "api_error", "loading run %s: %v", runID, err)
			return
		}
	}

	httpError(w, http.StatusNotFound, "not_found_error", "unknown run %s", runID)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !s.deps.Runner.Cancel(runID) {
		httpError(w, http.StatusNotFound, "not_found_error", "unknown or finished run %s", runID)
		return
	}
	s.logger.Infof("cancellation requested for run %s", runID)
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "canceled": true})
}

// archivedRun is the wire shape of a run served from history rather than
// the live registry.
type archivedRun struct {
	ID         string          `json:"id"`
	ProjectURL string          `json:"projectUrl"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Steps      json.RawMessage `json:"steps,omitempty"`
	QueuedAt   time.Time       `json:"queuedAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

func toArchivedRun(rec history.RunRecord) archivedRun {
	out := archivedRun{
		ID:         rec.ID,
		ProjectURL: rec.ProjectURL,
		Status:     rec.State,
		Error:      rec.Error,
		Summary:    rec.Summary,
		QueuedAt:   rec.QueuedAt,
	}
	if rec.StepsJSON != "" {
		out.Steps = json.RawMessage(rec.StepsJSON)
	}
	if !rec.StartedAt.IsZero() {
		t := rec.StartedAt
		out.StartedAt = &t
	}
	if !rec.FinishedAt.IsZero() {
		t := rec.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
