package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/actions"
	"github.com/framelight/deckhand/pkg/browser"
	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/teams"
)

// pageBroker hands out authenticated pages. *browser.Manager implements it.
type pageBroker interface {
	WithPage(ctx context.Context, opts browser.PageOptions, fn func(page playwright.Page) error) error
}

// Request is the external trigger payload for a new run.
type Request struct {
	ProjectURL  string `json:"projectUrl" yaml:"projectUrl"`
	Steps       []Step `json:"steps" yaml:"steps"`
	Headless    *bool  `json:"headless,omitempty" yaml:"headless,omitempty"`
	StopOnError bool   `json:"stopOnError,omitempty" yaml:"stopOnError,omitempty"`
}

func (req *Request) validate() error {
	if req.ProjectURL == "" {
		return fmt.Errorf("projectUrl is required")
	}
	if len(req.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i := range req.Steps {
		if err := req.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Runner owns the run registry and executes runs on background goroutines:
// one browser per run from the bounded broker, runs against the same
// project URL serialized behind a per-project lock.
type Runner struct {
	browsers pageBroker
	bus      *progress.Bus
	registry *teams.Registry
	cfg      config.Config
	acts     *actions.Actions
	orch     *Orchestrator
	logger   *logging.Logger

	mu       sync.RWMutex
	runs     map[string]*Run
	order    []string
	cancels  map[string]context.CancelFunc
	projects map[string]chan struct{}
	finished func(*Run)

	newExecutor func(page playwright.Page) StepExecutor

	wg sync.WaitGroup
}

// NewRunner wires a runner over the browser manager, progress bus, and team
// registry.
func NewRunner(mgr *browser.Manager, bus *progress.Bus, registry *teams.Registry, cfg config.Config) *Runner {
	resolver := locator.NewResolver(cfg.Browser.CandidateTimeout())
	acts := actions.New(resolver, cfg.Browser)
	logger, _ := logging.NewLogger("runner")

	r := &Runner{
		browsers: mgr,
		bus:      bus,
		registry: registry,
		cfg:      cfg,
		acts:     acts,
		orch:     NewOrchestrator(bus, cfg.Browser.StabilizationWait()),
		logger:   logger,
		runs:     make(map[string]*Run),
		cancels:  make(map[string]context.CancelFunc),
		projects: make(map[string]chan struct{}),
	}
	r.newExecutor = func(page playwright.Page) StepExecutor {
		return newPortalExecutor(r.acts, r.registry, r.cfg.Vault, page)
	}
	return r
}

// OnRunFinished registers a hook invoked with a snapshot of every run that
// reaches a terminal status. The serving layer uses it to persist history.
func (r *Runner) OnRunFinished(fn func(*Run)) {
	r.mu.Lock()
	r.finished = fn
	r.mu.Unlock()
}

// Start validates the request, registers a new run, and executes it on a
// background goroutine. The returned snapshot reflects the queued state.
func (r *Runner) Start(req Request) (*Run, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	headless := r.cfg.Browser.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	steps := make([]*Step, len(req.Steps))
	for i := range req.Steps {
		s := req.Steps[i]
		steps[i] = &s
	}
	run := NewRun(req.ProjectURL, steps, !req.StopOnError, headless)

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	r.cancels[run.ID] = cancel
	r.mu.Unlock()

	r.bus.Publish(progress.NewRunQueuedEvent(run.ID))
	r.logger.Infof("run %s queued: project=%s steps=%d", run.ID, run.ProjectURL, len(run.Steps))

	r.wg.Add(1)
	go r.execute(ctx, run)

	return run.Snapshot(), nil
}

func (r *Runner) execute(ctx context.Context, run *Run) {
	defer r.wg.Done()
	defer r.finishRun(run)

	release, err := r.acquireProject(ctx, run.ProjectURL)
	if err != nil {
		r.abort(run, fmt.Errorf("waiting for project lock: %w", err))
		return
	}
	defer release()

	headless := run.Headless
	started := false
	err = r.browsers.WithPage(ctx, browser.PageOptions{Headless: &headless}, func(page playwright.Page) error {
		started = true
		return r.orch.Execute(ctx, run, r.newExecutor(page))
	})
	if err != nil && !started {
		// The run never reached its first step: no valid session, no
		// browser slot, or the launch failed. Fatal to the whole run.
		r.abort(run, err)
	}
}

// abort finalizes a run that failed before its first step executed.
func (r *Runner) abort(run *Run, err error) {
	if errors.Is(err, context.Canceled) {
		run.Finish(RunCanceled, "")
		r.bus.Publish(progress.NewRunCanceledEvent(run.ID, run.Percent()))
		r.logger.Warnf("run %s canceled before execution", run.ID)
		return
	}
	run.Finish(RunCompleted, err.Error())
	r.bus.Publish(progress.NewRunCompletedEvent(run.ID, err.Error()))
	r.logger.Errorf("run %s aborted: %v", run.ID, err)
}

func (r *Runner) finishRun(run *Run) {
	r.mu.Lock()
	delete(r.cancels, run.ID)
	fn := r.finished
	r.mu.Unlock()

	r.bus.CloseRun(run.ID)
	if fn != nil {
		fn(run.Snapshot())
	}
}

// acquireProject serializes runs targeting the same project URL: the second
// run waits for the first to release, bounded by its own context.
func (r *Runner) acquireProject(ctx context.Context, projectURL string) (func(), error) {
	r.mu.Lock()
	lock, ok := r.projects[projectURL]
	if !ok {
		lock = make(chan struct{}, 1)
		r.projects[projectURL] = lock
	}
	r.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation of a run; it stops at its next step
// boundary. Returns false for unknown or already-terminal runs.
func (r *Runner) Cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Get returns a snapshot of the identified run.
func (r *Runner) Get(runID string) (*Run, bool) {
	r.mu.RLock()
	run, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return run.Snapshot(), true
}

// List returns snapshots of all registered runs, most recent first.
func (r *Runner) List() []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Run, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.runs[r.order[i]].Snapshot())
	}
	return out
}

// Wait blocks until every in-flight run has finished or ctx expires.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
