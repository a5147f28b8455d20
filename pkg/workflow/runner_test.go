package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelight/deckhand/pkg/browser"
	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/session"
	"github.com/framelight/deckhand/pkg/teams"
)

// fakeBroker stands in for the browser manager. It hands the callback a nil
// page (test executors never touch it) and tracks concurrency.
type fakeBroker struct {
	mu       sync.Mutex
	active   int
	maxSeen  int
	calls    int
	headless []bool
	err      error
}

func (f *fakeBroker) WithPage(ctx context.Context, opts browser.PageOptions, fn func(page playwright.Page) error) error {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	if opts.Headless != nil {
		f.headless = append(f.headless, *opts.Headless)
	}
	err := f.err
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()
	if err != nil {
		return err
	}
	return fn(nil)
}

func (f *fakeBroker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// executorFunc adapts a function to the StepExecutor interface.
type executorFunc func(ctx context.Context, run *Run, index int, step *Step) error

func (f executorFunc) ExecuteStep(ctx context.Context, run *Run, index int, step *Step) error {
	return f(ctx, run, index, step)
}

// finishLog captures final run snapshots from the runner's completion hook.
// Runs on the same project can finish out of hook order, so waits key on ID.
type finishLog struct {
	mu     sync.Mutex
	byID   map[string]*Run
	signal chan struct{}
}

func newFinishLog() *finishLog {
	return &finishLog{byID: map[string]*Run{}, signal: make(chan struct{}, 16)}
}

func (f *finishLog) record(run *Run) {
	f.mu.Lock()
	f.byID[run.ID] = run
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *finishLog) wait(t *testing.T, runID string) *Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		run := f.byID[runID]
		f.mu.Unlock()
		if run != nil {
			return run
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s did not finish", runID)
		}
		select {
		case <-f.signal:
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func newTestRunner(t *testing.T, broker pageBroker, exec StepExecutor) (*Runner, *finishLog) {
	t.Helper()
	cfg := config.Config{}
	cfg.Browser.Headless = true
	r := NewRunner(nil, progress.NewBus(), teams.NewRegistry(nil), cfg)
	r.browsers = broker
	if exec != nil {
		r.newExecutor = func(page playwright.Page) StepExecutor { return exec }
	}
	finished := newFinishLog()
	r.OnRunFinished(finished.record)
	return r, finished
}

func readyRequest(projectURL string) Request {
	return Request{
		ProjectURL: projectURL,
		Steps: []Step{
			*readyStep(ActionUploadAsset),
			*readyStep(ActionComment),
		},
	}
}

func TestRunnerStartAndComplete(t *testing.T) {
	broker := &fakeBroker{}
	r, finished := newTestRunner(t, broker, &scriptedExecutor{})

	run, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	final := finished.wait(t, run.ID)
	assert.Equal(t, RunCompleted, final.Status)
	assert.Equal(t, Summary{Successful: 2, Failed: 0, Skipped: 0}, final.Summary)
	assert.Equal(t, 1, broker.callCount())

	got, ok := r.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Len(t, r.List(), 1)
}

func TestRunnerRequestValidation(t *testing.T) {
	r, _ := newTestRunner(t, &fakeBroker{}, &scriptedExecutor{})

	_, err := r.Start(Request{Steps: []Step{*readyStep(ActionComment)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projectUrl is required")

	_, err = r.Start(Request{ProjectURL: "https://tracker.example/projects/42"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step is required")

	_, err = r.Start(Request{
		ProjectURL: "https://tracker.example/projects/42",
		Steps:      []Step{{Action: ActionType("teleport"), Enabled: true}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
}

func TestRunnerSerializesSameProject(t *testing.T) {
	broker := &fakeBroker{}
	entered := make(chan string, 2)
	release := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, run *Run, index int, step *Step) error {
		if index == 0 {
			entered <- run.ID
			<-release
		}
		return nil
	})
	r, finished := newTestRunner(t, broker, exec)

	first, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)
	require.Equal(t, first.ID, <-entered)

	second, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)

	// The second run must sit on the project lock while the first holds it.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, broker.callCount())
	got, ok := r.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, RunQueued, got.Status)

	close(release)
	finished.wait(t, first.ID)
	final := finished.wait(t, second.ID)
	assert.Equal(t, RunCompleted, final.Status)
	assert.Equal(t, 1, broker.maxSeen)
}

func TestRunnerAllowsDistinctProjectsConcurrently(t *testing.T) {
	broker := &fakeBroker{}
	entered := make(chan string, 2)
	release := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, run *Run, index int, step *Step) error {
		if index == 0 {
			entered <- run.ID
			<-release
		}
		return nil
	})
	r, finished := newTestRunner(t, broker, exec)

	first, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)
	second, err := r.Start(readyRequest("https://tracker.example/projects/77"))
	require.NoError(t, err)

	ids := map[string]bool{<-entered: true, <-entered: true}
	assert.True(t, ids[first.ID] && ids[second.ID])

	close(release)
	finished.wait(t, first.ID)
	finished.wait(t, second.ID)
	assert.Equal(t, 2, broker.maxSeen)
}

func TestRunnerCancelWhileWaitingForLock(t *testing.T) {
	broker := &fakeBroker{}
	entered := make(chan string, 1)
	release := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, run *Run, index int, step *Step) error {
		if index == 0 {
			entered <- run.ID
			<-release
		}
		return nil
	})
	r, finished := newTestRunner(t, broker, exec)

	first, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)
	<-entered

	second, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)
	require.True(t, r.Cancel(second.ID))

	final := finished.wait(t, second.ID)
	assert.Equal(t, RunCanceled, final.Status)
	for _, step := range final.Steps {
		assert.Equal(t, StepPending, step.Status)
	}

	close(release)
	finished.wait(t, first.ID)
	assert.Equal(t, 1, broker.callCount())
}

func TestRunnerCancelBetweenSteps(t *testing.T) {
	broker := &fakeBroker{}
	r, finished := newTestRunner(t, broker, nil)
	r.newExecutor = func(page playwright.Page) StepExecutor {
		return executorFunc(func(ctx context.Context, run *Run, index int, step *Step) error {
			if index == 0 {
				r.Cancel(run.ID)
			}
			return nil
		})
	}

	run, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)

	final := finished.wait(t, run.ID)
	assert.Equal(t, RunCanceled, final.Status)
	assert.Equal(t, StepSuccess, final.Steps[0].Status)
	assert.Equal(t, StepPending, final.Steps[1].Status)
}

func TestRunnerAbortsWhenPageUnavailable(t *testing.T) {
	broker := &fakeBroker{err: fmt.Errorf("restore session: %w", session.ErrAuthenticationRequired)}
	r, finished := newTestRunner(t, broker, &scriptedExecutor{})

	run, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)

	final := finished.wait(t, run.ID)
	assert.Equal(t, RunCompleted, final.Status)
	assert.Contains(t, final.Error, "restore session")
	for _, step := range final.Steps {
		assert.Equal(t, StepPending, step.Status)
	}
}

func TestRunnerHeadlessOverride(t *testing.T) {
	broker := &fakeBroker{}
	r, finished := newTestRunner(t, broker, &scriptedExecutor{})

	run, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)
	finished.wait(t, run.ID)

	visible := false
	req := readyRequest("https://tracker.example/projects/42")
	req.Headless = &visible
	run, err = r.Start(req)
	require.NoError(t, err)
	finished.wait(t, run.ID)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	require.Len(t, broker.headless, 2)
	assert.True(t, broker.headless[0])
	assert.False(t, broker.headless[1])
}

func TestRunnerListMostRecentFirst(t *testing.T) {
	broker := &fakeBroker{}
	r, finished := newTestRunner(t, broker, &scriptedExecutor{})

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := r.Start(readyRequest(fmt.Sprintf("https://tracker.example/projects/%d", i)))
		require.NoError(t, err)
		ids = append(ids, run.ID)
		finished.wait(t, run.ID)
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
	assert.Equal(t, ids[0], list[2].ID)
}

func TestRunnerUnknownRunID(t *testing.T) {
	r, _ := newTestRunner(t, &fakeBroker{}, &scriptedExecutor{})
	_, ok := r.Get("nope")
	assert.False(t, ok)
	assert.False(t, r.Cancel("nope"))
}

func TestRunnerWait(t *testing.T) {
	broker := &fakeBroker{}
	r, finished := newTestRunner(t, broker, &scriptedExecutor{})

	run, err := r.Start(readyRequest("https://tracker.example/projects/42"))
	require.NoError(t, err)
	finished.wait(t, run.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}
