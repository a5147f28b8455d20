package tui

import (
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/workflow"
)

// Views are asserted on plain text, so rendering must not depend on the
// terminal the tests happen to run under.
func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func newTestRun() *workflow.Run {
	steps := []*workflow.Step{
		{Action: workflow.ActionComment, Enabled: true, Params: workflow.StepParams{FileName: "brief.pdf", Text: "ready for review"}},
		{Action: workflow.ActionLogHours, Enabled: true, Params: workflow.StepParams{Hours: 2}},
	}
	return workflow.NewRun("https://tracker.example.com/projects/42", steps, false, true)
}

func newTestModel(events <-chan progress.Event, cancel func()) *model {
	return newModel(newTestRun(), events, cancel)
}

func TestNewModelSeedsFromSnapshot(t *testing.T) {
	m := newTestModel(nil, nil)

	require.Len(t, m.steps, 2)
	assert.Equal(t, "comment", m.steps[0].name)
	assert.Equal(t, "log_hours", m.steps[1].name)
	assert.Equal(t, workflow.StepPending, m.steps[0].status)
	assert.Equal(t, string(workflow.RunQueued), m.phase)
	assert.Zero(t, m.percent)
}

func TestApplyStepLifecycle(t *testing.T) {
	m := newTestModel(nil, nil)

	m.apply(progress.NewRunStartedEvent(m.runID))
	assert.Equal(t, string(workflow.RunRunning), m.phase)

	m.apply(progress.NewStepStartedEvent(m.runID, 0, "comment", 0))
	assert.Equal(t, workflow.StepRunning, m.steps[0].status)

	m.apply(progress.NewStepDelayEvent(m.runID, 0, "comment", 0))
	assert.Equal(t, workflow.StepRunning, m.steps[0].status)
	assert.Equal(t, "waiting before next portal action", m.steps[0].message)

	m.apply(progress.NewStepSuccessEvent(m.runID, 0, "comment", 50))
	assert.Equal(t, workflow.StepSuccess, m.steps[0].status)
	assert.Empty(t, m.steps[0].message)
	assert.Equal(t, 50.0, m.percent)

	m.apply(progress.NewStepErrorEvent(m.runID, 1, "log_hours", "portal timeout", 100))
	assert.Equal(t, workflow.StepError, m.steps[1].status)
	assert.Equal(t, "portal timeout", m.steps[1].message)
	assert.Equal(t, 100.0, m.percent)
}

func TestApplyIgnoresOutOfRangeStepIndex(t *testing.T) {
	m := newTestModel(nil, nil)

	m.apply(progress.NewStepSuccessEvent(m.runID, 5, "comment", 10))

	assert.Equal(t, workflow.StepPending, m.steps[0].status)
	assert.Equal(t, workflow.StepPending, m.steps[1].status)
}

func TestApplyTerminalEvents(t *testing.T) {
	m := newTestModel(nil, nil)
	m.apply(progress.NewRunCompletedEvent(m.runID, "2 successful, 0 failed, 0 skipped"))

	assert.Equal(t, string(workflow.RunCompleted), m.phase)
	assert.Equal(t, "2 successful, 0 failed, 0 skipped", m.summary)
	assert.Equal(t, 100.0, m.percent)
	assert.True(t, m.terminal())

	m = newTestModel(nil, nil)
	m.apply(progress.NewRunCanceledEvent(m.runID, 50))
	assert.Equal(t, string(workflow.RunCanceled), m.phase)
	assert.True(t, m.terminal())
}

func TestWaitForEventDeliversAndSignalsClose(t *testing.T) {
	events := make(chan progress.Event, 1)
	m := newTestModel(events, nil)

	events <- progress.NewRunStartedEvent(m.runID)
	msg := m.waitForEvent()()
	evt, ok := msg.(eventMsg)
	require.True(t, ok, "expected eventMsg, got %T", msg)
	assert.Equal(t, progress.EventRunStarted, evt.Type)

	close(events)
	msg = m.waitForEvent()()
	assert.IsType(t, streamClosedMsg{}, msg)
}

func TestUpdateQuitsOnTerminalEvent(t *testing.T) {
	events := make(chan progress.Event, 1)
	m := newTestModel(events, nil)

	_, cmd := m.Update(eventMsg(progress.NewRunCompletedEvent(m.runID, "done")))

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, string(workflow.RunCompleted), m.phase)
}

func TestUpdateKeepsStreamingAfterStepEvent(t *testing.T) {
	events := make(chan progress.Event, 1)
	m := newTestModel(events, nil)

	events <- progress.NewStepSuccessEvent(m.runID, 0, "comment", 50)
	_, cmd := m.Update(eventMsg(progress.NewStepStartedEvent(m.runID, 0, "comment", 0)))

	// The returned command re-arms the stream read and should deliver the
	// queued event.
	require.NotNil(t, cmd)
	msg := cmd()
	evt, ok := msg.(eventMsg)
	require.True(t, ok, "expected eventMsg, got %T", msg)
	assert.Equal(t, progress.EventStepSuccess, evt.Type)
}

func TestQuitKeyClosesView(t *testing.T) {
	m := newTestModel(nil, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestCtrlCCancelsOnceThenQuits(t *testing.T) {
	calls := 0
	m := newTestModel(nil, func() { calls++ })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, calls)
	assert.True(t, m.cancelled)
	assert.Nil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, calls)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestCtrlCAfterTerminalQuitsWithoutCancel(t *testing.T) {
	calls := 0
	m := newTestModel(nil, func() { calls++ })
	m.apply(progress.NewRunCompletedEvent(m.runID, "done"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.Zero(t, calls)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStreamClosedQuitsView(t *testing.T) {
	m := newTestModel(nil, nil)

	_, cmd := m.Update(streamClosedMsg{})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewShowsRunStateAndHelp(t *testing.T) {
	m := newTestModel(nil, nil)
	m.apply(progress.NewRunStartedEvent(m.runID))
	m.apply(progress.NewStepStartedEvent(m.runID, 0, "comment", 0))

	view := m.View()

	assert.Contains(t, view, "deckhand run "+shortID(m.runID))
	assert.Contains(t, view, "https://tracker.example.com/projects/42")
	assert.Contains(t, view, "comment")
	assert.Contains(t, view, "log_hours")
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "q: close view")
}

func TestViewMarksOutcomes(t *testing.T) {
	m := newTestModel(nil, nil)
	m.apply(progress.NewRunStartedEvent(m.runID))
	m.apply(progress.NewStepSuccessEvent(m.runID, 0, "comment", 50))
	m.apply(progress.NewStepErrorEvent(m.runID, 1, "log_hours", "portal timeout", 100))
	m.apply(progress.NewRunCompletedEvent(m.runID, "1 successful, 1 failed, 0 skipped"))

	view := m.View()

	assert.Contains(t, view, "+ comment")
	assert.Contains(t, view, "x log_hours")
	assert.Contains(t, view, "portal timeout")
	assert.Contains(t, view, "1 successful, 1 failed, 0 skipped")
	assert.Contains(t, view, "completed")
}

func TestViewNotesCancellationRequest(t *testing.T) {
	m := newTestModel(nil, func() {})
	m.apply(progress.NewRunStartedEvent(m.runID))
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.Contains(t, m.View(), "cancellation requested")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "5a3e1c9a", shortID("5a3e1c9a-90c1-4b27-9f7e-2f3a8d1f1a11"))
	assert.Equal(t, "local", shortID("local"))
}
