// Package progress carries live run telemetry from the orchestrator to
// subscribers: SSE streams, the CLI follow view, and logs.
package progress

import (
	"time"
)

// EventType defines the kind of progress event emitted during a run.
type EventType string

const (
	EventRunQueued    EventType = "run_queued"    // EventRunQueued indicates the run was accepted and is waiting for a browser slot.
	EventRunStarted   EventType = "run_started"   // EventRunStarted indicates step execution has begun.
	EventStepStarted  EventType = "step_started"  // EventStepStarted indicates a step transitioned to running.
	EventStepDelay    EventType = "step_delay"    // EventStepDelay indicates the pacing pause between portal actions.
	EventStepSuccess  EventType = "step_success"  // EventStepSuccess indicates a step completed and verified.
	EventStepError    EventType = "step_error"    // EventStepError indicates a step failed after retries.
	EventStepSkipped  EventType = "step_skipped"  // EventStepSkipped indicates a step was not attempted for lack of prerequisites.
	EventRunCompleted EventType = "run_completed" // EventRunCompleted indicates the run reached its terminal summary.
	EventRunCanceled  EventType = "run_canceled"  // EventRunCanceled indicates the run stopped at a step boundary on request.
)

// Event is one progress update. StepIndex is meaningful only for step
// events; Percent is the run's overall completion at emission time.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"runId"`
	StepIndex int       `json:"stepIndex"`
	StepName  string    `json:"stepName,omitempty"`
	Message   string    `json:"message,omitempty"`
	Percent   float64   `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal returns true for the last event a run will ever emit.
func (e Event) IsTerminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunCanceled
}

// IsStepEvent returns true for events describing a single step.
func (e Event) IsStepEvent() bool {
	return e.Type == EventStepStarted ||
		e.Type == EventStepDelay ||
		e.Type == EventStepSuccess ||
		e.Type == EventStepError ||
		e.Type == EventStepSkipped
}

// NewRunQueuedEvent creates a run queued event.
func NewRunQueuedEvent(runID string) Event {
	return Event{Type: EventRunQueued, RunID: runID, Timestamp: time.Now()}
}

// NewRunStartedEvent creates a run started event.
func NewRunStartedEvent(runID string) Event {
	return Event{Type: EventRunStarted, RunID: runID, Timestamp: time.Now()}
}

// NewStepStartedEvent creates a step started event.
func NewStepStartedEvent(runID string, index int, name string, percent float64) Event {
	return Event{
		Type:      EventStepStarted,
		RunID:     runID,
		StepIndex: index,
		StepName:  name,
		Percent:   percent,
		Timestamp: time.Now(),
	}
}

// NewStepDelayEvent creates a pacing delay event.
func NewStepDelayEvent(runID string, index int, name string, percent float64) Event {
	return Event{
		Type:      EventStepDelay,
		RunID:     runID,
		StepIndex: index,
		StepName:  name,
		Percent:   percent,
		Timestamp: time.Now(),
	}
}

// NewStepSuccessEvent creates a step success event.
func NewStepSuccessEvent(runID string, index int, name string, percent float64) Event {
	return Event{
		Type:      EventStepSuccess,
		RunID:     runID,
		StepIndex: index,
		StepName:  name,
		Percent:   percent,
		Timestamp: time.Now(),
	}
}

// NewStepErrorEvent creates a step error event carrying the summary message.
func NewStepErrorEvent(runID string, index int, name, message string, percent float64) Event {
	return Event{
		Type:      EventStepError,
		RunID:     runID,
		StepIndex: index,
		StepName:  name,
		Message:   message,
		Percent:   percent,
		Timestamp: time.Now(),
	}
}

// NewStepSkippedEvent creates a step skipped event carrying the reason.
func NewStepSkippedEvent(runID string, index int, name, reason string, percent float64) Event {
	return Event{
		Type:      EventStepSkipped,
		RunID:     runID,
		StepIndex: index,
		StepName:  name,
		Message:   reason,
		Percent:   percent,
		Timestamp: time.Now(),
	}
}

// NewRunCompletedEvent creates a run completed event carrying the summary.
func NewRunCompletedEvent(runID, summary string) Event {
	return Event{
		Type:      EventRunCompleted,
		RunID:     runID,
		Message:   summary,
		Percent:   100,
		Timestamp: time.Now(),
	}
}

// NewRunCanceledEvent creates a run canceled event.
func NewRunCanceledEvent(runID string, percent float64) Event {
	return Event{
		Type:      EventRunCanceled,
		RunID:     runID,
		Percent:   percent,
		Timestamp: time.Now(),
	}
}
