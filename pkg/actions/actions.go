// Package actions implements the portal interaction primitives: the small,
// verifiable moves (navigate, select, share, comment, download, upload,
// status, hours) that workflows compose. Every primitive resolves targets
// through the fallback resolver, retries transient failures, and verifies
// its own outcome before reporting success.
package actions

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/logging"
)

// Actions bundles the resolver and timing policy shared by all primitives.
type Actions struct {
	resolver *locator.Resolver
	cfg      config.BrowserConfig
	logger   *logging.Logger
}

// New creates the primitive set with the given resolver and timing config.
func New(resolver *locator.Resolver, cfg config.BrowserConfig) *Actions {
	logger, _ := logging.NewLogger("actions")
	return &Actions{
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Resolver exposes the underlying resolver for prerequisite probes.
func (a *Actions) Resolver() *locator.Resolver {
	return a.resolver
}

// do runs one interaction stage under the retry policy: fixed delay,
// bounded attempts, aborted by context. The last error wins.
func (a *Actions) do(ctx context.Context, name string, fn func() error) error {
	attempts := a.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(a.cfg.RetryDelay()),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Debugf("%s: attempt %d failed: %v", name, n+1, err)
		}),
	)
}

// click escalates through the interaction ladder: a plain click first,
// then a forced click for overlay-obscured elements, then a synthetic
// click event as the last resort.
func (a *Actions) click(loc playwright.Locator) error {
	if err := loc.Click(); err == nil {
		return nil
	}
	if err := loc.Click(playwright.LocatorClickOptions{Force: playwright.Bool(true)}); err == nil {
		a.logger.Debugf("plain click failed, forced click succeeded")
		return nil
	}
	if err := loc.DispatchEvent("click", nil); err != nil {
		return err
	}
	a.logger.Debugf("forced click failed, dispatched click event")
	return nil
}

// settle pauses briefly after a mutating action so the portal frontend can
// catch up before the next resolution.
func (a *Actions) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(a.cfg.StabilizationWait()):
	}
}

// visibleWithin waits up to timeout for a target to become visible,
// without surfacing resolution errors.
func (a *Actions) visibleWithin(ctx context.Context, scope locator.Scope, target locator.Target, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if a.resolver.Visible(ctx, scope, target) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
}
