package actions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/locator"
)

// OpenTrackerProject navigates to a project page on the tracker and waits
// for its header.
func (a *Actions) OpenTrackerProject(ctx context.Context, page playwright.Page, projectURL, projectName string) error {
	scope := locator.PageScope(page)
	return a.do(ctx, "open tracker project", func() error {
		if _, err := page.Goto(projectURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(a.cfg.NavTimeout().Milliseconds())),
		}); err != nil {
			return fmt.Errorf("navigation to project failed: %w", err)
		}
		a.settle(ctx)

		if projectName != "" && !a.resolver.Visible(ctx, scope, locator.TrackerProjectHeader(projectName)) {
			return &VerificationError{Action: "open tracker project", Expected: fmt.Sprintf("header for %q", projectName)}
		}
		return nil
	})
}

// UpdateStatus changes the project status and verifies the rendered badge
// reflects the new value.
func (a *Actions) UpdateStatus(ctx context.Context, scope locator.Scope, status string) error {
	if strings.TrimSpace(status) == "" {
		return fmt.Errorf("status value is empty")
	}

	return a.do(ctx, "update status", func() error {
		control, err := a.resolver.Resolve(ctx, scope, locator.TrackerStatusControl)
		if err != nil {
			return err
		}
		if err := a.click(control); err != nil {
			return fmt.Errorf("opening status selector: %w", err)
		}
		a.settle(ctx)

		option, err := a.resolver.Resolve(ctx, scope, locator.TrackerStatusOption(status))
		if err != nil {
			return err
		}
		if err := a.click(option); err != nil {
			return fmt.Errorf("choosing status %q: %w", status, err)
		}
		a.settle(ctx)

		if !a.visibleWithin(ctx, scope, locator.TrackerStatusBadge(status), a.cfg.ActionTimeout()) {
			return &VerificationError{Action: "update status", Expected: fmt.Sprintf("status shown as %q", status)}
		}
		return nil
	})
}

// LogHours records a time entry against the open project. The note is
// optional; portals without a note field simply do not receive one.
func (a *Actions) LogHours(ctx context.Context, scope locator.Scope, hours float64, note string) error {
	if hours <= 0 {
		return fmt.Errorf("hours must be positive, got %v", hours)
	}

	return a.do(ctx, "log hours", func() error {
		button, err := a.resolver.Resolve(ctx, scope, locator.TrackerLogHoursButton)
		if err != nil {
			return err
		}
		if err := a.click(button); err != nil {
			return fmt.Errorf("opening time entry form: %w", err)
		}
		a.settle(ctx)

		input, err := a.resolver.Resolve(ctx, scope, locator.TrackerHoursInput)
		if err != nil {
			return err
		}
		value := strconv.FormatFloat(hours, 'f', -1, 64)
		if err := input.Fill(value); err != nil {
			return fmt.Errorf("entering hours: %w", err)
		}

		if note != "" {
			if noteField, err := a.resolver.Resolve(ctx, scope, locator.TrackerHoursNote); err == nil {
				if err := noteField.Fill(note); err != nil {
					a.logger.Warnf("note entry failed, submitting without note: %v", err)
				}
			}
		}

		submit, err := a.resolver.Resolve(ctx, scope, locator.TrackerHoursSubmit)
		if err != nil {
			return err
		}
		if err := a.click(submit); err != nil {
			return fmt.Errorf("saving time entry: %w", err)
		}
		a.settle(ctx)

		if a.resolver.Visible(ctx, scope, locator.TrackerHoursToast) {
			return nil
		}
		// Form disappearing is the fallback success signal.
		if !a.resolver.Visible(ctx, scope, locator.TrackerHoursInput) {
			return nil
		}
		return &VerificationError{Action: "log hours", Expected: "time entry accepted"}
	})
}
