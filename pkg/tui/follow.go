// Package tui renders a live terminal follow view for one workflow run,
// fed by the progress bus.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/workflow"
)

// Follow runs the follow view until the run reaches a terminal state, the
// event stream closes, or the operator quits. cancelRun is invoked when the
// operator requests cancellation; pass nil to disable that binding.
func Follow(ctx context.Context, run *workflow.Run, events <-chan progress.Event, cancelRun func()) error {
	m := newModel(run, events, cancelRun)
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

type stepLine struct {
	name    string
	status  workflow.StepStatus
	message string
}

type model struct {
	runID   string
	project string
	spinner spinner.Model

	steps   []stepLine
	percent float64
	phase   string
	summary string

	events    <-chan progress.Event
	cancelRun func()
	cancelled bool
}

// eventMsg wraps one bus event for the update loop.
type eventMsg progress.Event

// streamClosedMsg signals that the event channel closed without a terminal
// event, usually because the publisher shut down.
type streamClosedMsg struct{}

func newModel(run *workflow.Run, events <-chan progress.Event, cancelRun func()) *model {
	steps := make([]stepLine, len(run.Steps))
	for i, step := range run.Steps {
		steps[i] = stepLine{name: step.Name(), status: step.Status, message: step.Message}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle

	return &model{
		runID:     run.ID,
		project:   run.ProjectURL,
		spinner:   sp,
		steps:     steps,
		percent:   run.Progress,
		phase:     string(run.Status),
		events:    events,
		cancelRun: cancelRun,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent blocks on the bus channel and feeds the next event into the
// update loop.
func (m *model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(evt)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var spinnerCmd tea.Cmd
	m.spinner, spinnerCmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "ctrl+c":
			// First press asks the orchestrator to cancel and keeps the
			// view open for the terminal event. A second press closes it.
			if m.cancelRun != nil && !m.cancelled && !m.terminal() {
				m.cancelRun()
				m.cancelled = true
				return m, spinnerCmd
			}
			return m, tea.Quit
		}

	case eventMsg:
		m.apply(progress.Event(msg))
		if m.terminal() {
			return m, tea.Quit
		}
		return m, tea.Batch(spinnerCmd, m.waitForEvent())

	case streamClosedMsg:
		return m, tea.Quit
	}

	return m, spinnerCmd
}

func (m *model) apply(evt progress.Event) {
	if evt.Percent > 0 || evt.IsTerminal() {
		m.percent = evt.Percent
	}

	switch evt.Type {
	case progress.EventRunQueued:
		m.phase = string(workflow.RunQueued)
	case progress.EventRunStarted:
		m.phase = string(workflow.RunRunning)
	case progress.EventRunCompleted:
		m.phase = string(workflow.RunCompleted)
		m.summary = evt.Message
	case progress.EventRunCanceled:
		m.phase = string(workflow.RunCanceled)
	}

	if !evt.IsStepEvent() || evt.StepIndex < 0 || evt.StepIndex >= len(m.steps) {
		return
	}
	step := &m.steps[evt.StepIndex]
	switch evt.Type {
	case progress.EventStepStarted:
		step.status = workflow.StepRunning
		step.message = ""
	case progress.EventStepDelay:
		step.status = workflow.StepRunning
		step.message = "waiting before next portal action"
	case progress.EventStepSuccess:
		step.status = workflow.StepSuccess
		step.message = ""
	case progress.EventStepError:
		step.status = workflow.StepError
		step.message = evt.Message
	case progress.EventStepSkipped:
		step.status = workflow.StepSkipped
		step.message = evt.Message
	}
}

func (m *model) terminal() bool {
	return m.phase == string(workflow.RunCompleted) || m.phase == string(workflow.RunCanceled)
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("deckhand run %s", shortID(m.runID))))
	b.WriteString("\n")
	b.WriteString(projectStyle.Render(m.project))
	b.WriteString("\n\n")

	for _, step := range m.steps {
		b.WriteString("  ")
		b.WriteString(m.renderStep(step))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q: close view   ctrl+c: cancel run"))
	b.WriteString("\n")
	return b.String()
}

func (m *model) renderStep(step stepLine) string {
	var marker, name string
	switch step.status {
	case workflow.StepSuccess:
		marker = successStyle.Render("+")
		name = stepNameStyle.Render(step.name)
	case workflow.StepError:
		marker = errorStyle.Render("x")
		name = stepNameStyle.Render(step.name)
	case workflow.StepRunning:
		marker = m.spinner.View()
		name = runningStyle.Render(step.name)
	case workflow.StepSkipped:
		marker = skippedStyle.Render("-")
		name = skippedStyle.Render(step.name)
	default:
		marker = pendingStyle.Render(".")
		name = pendingStyle.Render(step.name)
	}

	line := fmt.Sprintf("%s %s", marker, name)
	if step.message != "" {
		line += "  " + messageStyle.Render(step.message)
	}
	return line
}

func (m *model) renderStatus() string {
	status := fmt.Sprintf("%3.0f%%  %s", m.percent, m.phase)
	if m.cancelled && !m.terminal() {
		status += "  (cancellation requested)"
	}
	out := summaryStyle.Render(status)
	if m.summary != "" {
		out += "\n" + summaryStyle.Render(m.summary)
	}
	return out
}

// shortID trims a UUID to its leading segment for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
