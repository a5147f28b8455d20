package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/workflow"
)

// handleProgress streams one run's events as server-sent events. On connect
// the current step statuses are replayed from a snapshot, then live events
// follow until the run reaches a terminal state or the client disconnects.
func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, ok := s.deps.Runner.Get(runID)
	if !ok {
		httpError(w, http.StatusNotFound, "not_found_error", "unknown run %s", runID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming unsupported")
		return
	}

	// Subscribe before taking the snapshot so no event can fall between the
	// replayed state and the live stream. Step events received twice carry
	// the same status and are harmless to consumers.
	events, cancelSub := s.deps.Bus.Subscribe(runID)
	defer cancelSub()
	if snap, ok := s.deps.Runner.Get(runID); ok {
		run = snap
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, evt := range replayEvents(run) {
		writeEvent(w, flusher, evt)
	}
	if run.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			writeEvent(w, flusher, evt)
			if evt.IsTerminal() {
				return
			}
		}
	}
}

// replayEvents synthesizes the event sequence a late subscriber missed,
// derived from a run snapshot. Replayed step events carry the snapshot's
// overall percent.
func replayEvents(run *workflow.Run) []progress.Event {
	if run.Status == workflow.RunQueued {
		return []progress.Event{progress.NewRunQueuedEvent(run.ID)}
	}

	evts := []progress.Event{progress.NewRunStartedEvent(run.ID)}
	for i, step := range run.Steps {
		switch step.Status {
		case workflow.StepRunning:
			evts = append(evts, progress.NewStepStartedEvent(run.ID, i, step.Name(), run.Progress))
		case workflow.StepSuccess:
			evts = append(evts, progress.NewStepSuccessEvent(run.ID, i, step.Name(), run.Progress))
		case workflow.StepError:
			evts = append(evts, progress.NewStepErrorEvent(run.ID, i, step.Name(), step.Message, run.Progress))
		case workflow.StepSkipped:
			evts = append(evts, progress.NewStepSkippedEvent(run.ID, i, step.Name(), step.Message, run.Progress))
		}
	}

	switch run.Status {
	case workflow.RunCompleted:
		msg := run.SummaryLine()
		if run.Error != "" {
			msg = run.Error
		}
		evts = append(evts, progress.NewRunCompletedEvent(run.ID, msg))
	case workflow.RunCanceled:
		evts = append(evts, progress.NewRunCanceledEvent(run.ID, run.Progress))
	}
	return evts
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, evt progress.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
