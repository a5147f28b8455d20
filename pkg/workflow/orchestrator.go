package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/framelight/deckhand/pkg/browser"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/session"
)

// StepExecutor performs one step's portal interactions. The orchestrator
// never invokes it for disabled or skipped steps.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, run *Run, index int, step *Step) error
}

// Orchestrator drives one run: readiness checks, declared-order execution,
// the error policy, and progress emission. It owns every step and run state
// transition while the run executes.
type Orchestrator struct {
	bus       *progress.Bus
	stepDelay time.Duration
	logger    *logging.Logger
}

// NewOrchestrator creates an orchestrator publishing to bus, pausing
// stepDelay between consecutive executed steps so portal frontends settle.
func NewOrchestrator(bus *progress.Bus, stepDelay time.Duration) *Orchestrator {
	logger, _ := logging.NewLogger("workflow")
	return &Orchestrator{bus: bus, stepDelay: stepDelay, logger: logger}
}

// Execute runs every enabled step of run in declared order. Individual step
// failures are recorded on the run per its error policy; the returned error
// is non-nil only when the run stopped abnormally (cancellation or a fatal
// session condition).
func (o *Orchestrator) Execute(ctx context.Context, run *Run, exec StepExecutor) error {
	log := o.logger.WithRun(run.ID)
	run.Begin()
	o.bus.Publish(progress.NewRunStartedEvent(run.ID))
	log.Infof("run started: project=%s steps=%d", run.ProjectURL, len(run.Steps))

	ranAny := false
	for i, step := range run.Steps {
		if !step.Enabled {
			continue
		}

		// Cancellation is honored at step boundaries; an in-flight step
		// finishes or times out naturally.
		if ctx.Err() != nil {
			return o.cancelRun(run, log)
		}

		if reason := step.MissingPrereq(); reason != "" {
			if err := run.TransitionStep(i, StepSkipped, reason); err != nil {
				return err
			}
			o.bus.Publish(progress.NewStepSkippedEvent(run.ID, i, step.Name(), reason, run.Percent()))
			log.Infof("step %d (%s) skipped: %s", i+1, step.Name(), reason)
			continue
		}

		if ranAny && o.stepDelay > 0 {
			o.bus.Publish(progress.NewStepDelayEvent(run.ID, i, step.Name(), run.Percent()))
			select {
			case <-ctx.Done():
				return o.cancelRun(run, log)
			case <-time.After(o.stepDelay):
			}
		}

		if err := run.TransitionStep(i, StepRunning, ""); err != nil {
			return err
		}
		o.bus.Publish(progress.NewStepStartedEvent(run.ID, i, step.Name(), run.Percent()))
		log.Infof("step %d (%s) started", i+1, step.Name())
		ranAny = true

		err := exec.ExecuteStep(ctx, run, i, step)
		if err == nil {
			if terr := run.TransitionStep(i, StepSuccess, ""); terr != nil {
				return terr
			}
			o.bus.Publish(progress.NewStepSuccessEvent(run.ID, i, step.Name(), run.Percent()))
			log.Infof("step %d (%s) succeeded", i+1, step.Name())
			continue
		}

		if interrupted(ctx, err) {
			if terr := run.TransitionStep(i, StepError, "canceled mid-step"); terr != nil {
				return terr
			}
			o.bus.Publish(progress.NewStepErrorEvent(run.ID, i, step.Name(), "canceled mid-step", run.Percent()))
			return o.cancelRun(run, log)
		}

		if terr := run.TransitionStep(i, StepError, err.Error()); terr != nil {
			return terr
		}
		o.bus.Publish(progress.NewStepErrorEvent(run.ID, i, step.Name(), err.Error(), run.Percent()))
		log.Errorf("step %d (%s) failed: %v", i+1, step.Name(), err)

		if fatal(err) {
			// No later step can succeed without a session, regardless of
			// the error policy.
			run.Finish(RunCompleted, err.Error())
			o.bus.Publish(progress.NewRunCompletedEvent(run.ID, run.SummaryLine()))
			log.Errorf("run aborted: %v", err)
			return err
		}

		if !run.ContinueOnError {
			log.Warnf("halting run, remaining steps stay pending")
			break
		}
	}

	run.Finish(RunCompleted, "")
	o.bus.Publish(progress.NewRunCompletedEvent(run.ID, run.SummaryLine()))
	log.Infof("run completed: %s", run.SummaryLine())
	return nil
}

func (o *Orchestrator) cancelRun(run *Run, log *logging.Logger) error {
	run.Finish(RunCanceled, "")
	o.bus.Publish(progress.NewRunCanceledEvent(run.ID, run.Percent()))
	log.Warnf("run canceled: %s", run.SummaryLine())
	return context.Canceled
}

// interrupted reports whether a step error is really the run's own
// cancellation surfacing through the step.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// fatal reports errors that doom every subsequent step of a run.
func fatal(err error) bool {
	var loginTimeout *browser.LoginTimeoutError
	return errors.Is(err, session.ErrAuthenticationRequired) || errors.As(err, &loginTimeout)
}
