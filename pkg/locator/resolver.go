// Package locator resolves logical UI targets against live pages.
// Portal frontends rename classes and reshuffle test IDs between deploys;
// every target therefore carries an ordered list of selector candidates,
// most specific first, tried until one is visible.
package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/logging"
)

// Target is a logical UI element with ordered selector candidates.
type Target struct {
	Name       string
	Candidates []string
}

// NotFoundError reports that no candidate for a target became visible
// within its window. Attempted preserves the full candidate order for
// diagnostics; summaries should use Error(), not the list.
type NotFoundError struct {
	Target    string
	Attempted []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("target %q not found after trying %d selector(s)", e.Target, len(e.Attempted))
}

// Detail returns the attempted selectors joined for diagnostic output.
func (e *NotFoundError) Detail() string {
	return strings.Join(e.Attempted, ", ")
}

// Scope is a surface selectors resolve against: a page or a frame within it.
type Scope interface {
	Locator(selector string) playwright.Locator
}

type pageScope struct {
	page playwright.Page
}

func (s pageScope) Locator(selector string) playwright.Locator {
	return s.page.Locator(selector)
}

// PageScope wraps a page as a resolution scope.
func PageScope(page playwright.Page) Scope {
	return pageScope{page: page}
}

type frameScope struct {
	frame playwright.FrameLocator
}

func (s frameScope) Locator(selector string) playwright.Locator {
	return s.frame.Locator(selector)
}

// FrameScope wraps an iframe as a resolution scope, for portals that mount
// dialogs inside embedded frames.
func FrameScope(frame playwright.FrameLocator) Scope {
	return frameScope{frame: frame}
}

// ProbeFunc checks a single candidate and returns its locator when the
// element is present and visible within the timeout.
type ProbeFunc func(scope Scope, selector string, timeout time.Duration) (playwright.Locator, bool)

// visibleProbe is the default probe: wait for the first match to be visible.
func visibleProbe(scope Scope, selector string, timeout time.Duration) (playwright.Locator, bool) {
	first := scope.Locator(selector).First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return first, err == nil
}

// Resolver tries a target's candidates in declared order and returns the
// first visible match. It performs no retries of its own; callers that want
// retry wrap Resolve.
type Resolver struct {
	probe        ProbeFunc
	perCandidate time.Duration
	logger       *logging.Logger
}

// NewResolver creates a resolver with the given per-candidate wait.
func NewResolver(perCandidate time.Duration) *Resolver {
	logger, _ := logging.NewLogger("locator")
	return &Resolver{
		probe:        visibleProbe,
		perCandidate: perCandidate,
		logger:       logger,
	}
}

// WithProbe returns a copy of the resolver using the given probe.
func (r *Resolver) WithProbe(probe ProbeFunc) *Resolver {
	clone := *r
	clone.probe = probe
	return &clone
}

// Resolve walks the candidate list in order. The first visible candidate
// wins immediately; exhaustion yields a NotFoundError carrying every
// attempted selector. Worst-case duration is bounded by the per-candidate
// wait times the candidate count.
func (r *Resolver) Resolve(ctx context.Context, scope Scope, target Target) (playwright.Locator, error) {
	if len(target.Candidates) == 0 {
		return nil, &NotFoundError{Target: target.Name}
	}

	attempted := make([]string, 0, len(target.Candidates))
	for i, selector := range target.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempted = append(attempted, selector)
		loc, ok := r.probe(scope, selector, r.perCandidate)
		if !ok {
			continue
		}

		if i > 0 {
			r.logger.Debugf("target %q resolved via fallback candidate %d: %s", target.Name, i+1, selector)
		}
		return loc, nil
	}

	r.logger.Warnf("target %q not found, attempted: %s", target.Name, strings.Join(attempted, ", "))
	return nil, &NotFoundError{Target: target.Name, Attempted: attempted}
}

// Visible reports whether the target can currently be resolved, without
// surfacing an error on absence. Used for prerequisite checks.
func (r *Resolver) Visible(ctx context.Context, scope Scope, target Target) bool {
	_, err := r.Resolve(ctx, scope, target)
	return err == nil
}
