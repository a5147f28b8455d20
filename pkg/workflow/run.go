package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a whole run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"    // RunQueued means the run is registered and waiting to execute.
	RunRunning   RunStatus = "running"   // RunRunning means steps are executing.
	RunCompleted RunStatus = "completed" // RunCompleted means the run reached its terminal summary.
	RunCanceled  RunStatus = "canceled"  // RunCanceled means the run stopped at a step boundary on request.
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunCanceled
}

// Summary aggregates terminal step outcomes. Skipped is counted apart from
// Failed so callers can tell "nothing to do" from "it broke".
type Summary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d successful, %d failed, %d skipped", s.Successful, s.Failed, s.Skipped)
}

// Run is an ordered sequence of steps bound to one project URL, executed
// with a shared error policy. Mutation goes through methods so concurrent
// readers always observe consistent snapshots; the orchestrator is the only
// writer while the run executes.
type Run struct {
	mu sync.RWMutex

	ID              string     `json:"id"`
	ProjectURL      string     `json:"projectUrl"`
	ContinueOnError bool       `json:"continueOnError"`
	Headless        bool       `json:"headless"`
	Steps           []*Step    `json:"steps"`
	Status          RunStatus  `json:"status"`
	Summary         Summary    `json:"summary"`
	Progress        float64    `json:"progress"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
}

// NewRun builds a queued run. Step statuses are normalized to pending
// regardless of what the caller supplied.
func NewRun(projectURL string, steps []*Step, continueOnError, headless bool) *Run {
	prepared := make([]*Step, len(steps))
	for i, s := range steps {
		c := *s
		c.Status = StepPending
		c.Message = ""
		prepared[i] = &c
	}
	return &Run{
		ID:              uuid.NewString(),
		ProjectURL:      projectURL,
		ContinueOnError: continueOnError,
		Headless:        headless,
		Steps:           prepared,
		Status:          RunQueued,
		CreatedAt:       time.Now(),
	}
}

// Snapshot returns a deep copy safe for serialization while the run keeps
// executing.
func (r *Run) Snapshot() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]*Step, len(r.Steps))
	for i, s := range r.Steps {
		c := *s
		steps[i] = &c
	}
	out := &Run{
		ID:              r.ID,
		ProjectURL:      r.ProjectURL,
		ContinueOnError: r.ContinueOnError,
		Headless:        r.Headless,
		Steps:           steps,
		Status:          r.Status,
		Summary:         r.Summary,
		Progress:        r.Progress,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt,
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Begin moves the run from queued to running.
func (r *Run) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status != RunQueued {
		return
	}
	now := time.Now()
	r.Status = RunRunning
	r.StartedAt = &now
}

// Finish stamps the terminal status. errMsg is recorded for fatal aborts;
// ordinary step failures live on the steps themselves.
func (r *Run) Finish(status RunStatus, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status.Terminal() {
		return
	}
	now := time.Now()
	r.Status = status
	r.EndedAt = &now
	if errMsg != "" {
		r.Error = errMsg
	}
	r.recalcLocked()
}

// TransitionStep applies one step lifecycle transition, enforcing that a
// step runs exactly once and is skipped only from pending.
func (r *Run) TransitionStep(index int, to StepStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.Steps) {
		return fmt.Errorf("step index %d out of range", index)
	}
	step := r.Steps[index]
	if !canTransition(step.Status, to) {
		return fmt.Errorf("illegal step transition %s -> %s for step %d (%s)", step.Status, to, index, step.Action)
	}
	step.Status = to
	step.Message = message
	r.recalcLocked()
	return nil
}

// Percent reports the current progress percentage.
func (r *Run) Percent() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Progress
}

// SummaryLine reports the current summary in display form.
func (r *Run) SummaryLine() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Summary.String()
}

// recalcLocked rebuilds the summary counts and the derived progress
// percentage (terminal enabled steps over all enabled steps).
func (r *Run) recalcLocked() {
	var summary Summary
	enabled, terminal := 0, 0
	for _, s := range r.Steps {
		if !s.Enabled {
			continue
		}
		enabled++
		if s.Status.Terminal() {
			terminal++
		}
		switch s.Status {
		case StepSuccess:
			summary.Successful++
		case StepError:
			summary.Failed++
		case StepSkipped:
			summary.Skipped++
		}
	}
	r.Summary = summary
	if enabled > 0 {
		r.Progress = float64(terminal) / float64(enabled) * 100
	} else if r.Status == RunCompleted {
		r.Progress = 100
	}
}
