// Package browser owns the playwright lifecycle: driver startup, bounded
// browser acquisition for runs, and the interactive login flow that seeds
// the persisted session.
package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/semaphore"

	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/session"
)

// State describes the manager's authentication lifecycle.
type State string

const (
	StateNoSession     State = "no_session"
	StateLoggingIn     State = "logging_in"
	StateAuthenticated State = "authenticated"
	StateExpired       State = "expired"
)

// Manager coordinates playwright and hands out authenticated pages.
// Concurrent page acquisition is capped; the interactive login flow is
// exclusive.
type Manager struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool

	cfg   config.BrowserConfig
	vault config.VaultConfig
	store *session.Store

	sem    *semaphore.Weighted
	active atomic.Int64

	loginMu   sync.Mutex
	loggingIn atomic.Bool

	logger *logging.Logger
}

// NewManager creates a manager over the given session store.
func NewManager(cfg config.BrowserConfig, vault config.VaultConfig, store *session.Store) *Manager {
	logger, _ := logging.NewLogger("browser")
	return &Manager{
		cfg:    cfg,
		vault:  vault,
		store:  store,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger,
	}
}

// Initialize installs and starts the playwright driver.
// Must be called before any page acquisition.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Driver output is discarded so it cannot interleave with CLI output.
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.pw = pw
	m.initialized = true
	m.logger.Infof("playwright initialized")
	return nil
}

// State reports the authentication lifecycle state at now.
func (m *Manager) State(now time.Time) State {
	if m.loggingIn.Load() {
		return StateLoggingIn
	}

	sess, err := m.store.Load()
	if err != nil || sess == nil {
		return StateNoSession
	}
	if sess.Valid(now) {
		return StateAuthenticated
	}
	return StateExpired
}

// ActivePages reports how many browser instances are currently open.
func (m *Manager) ActivePages() int64 {
	return m.active.Load()
}

// PageOptions adjust a single page acquisition.
type PageOptions struct {
	// Headless overrides the configured headless mode when non-nil.
	Headless *bool
}

// WithPage acquires a browser slot, opens an authenticated page, runs fn,
// and tears everything down regardless of outcome. Without a valid session
// it fails fast with session.ErrAuthenticationRequired instead of opening
// a browser.
func (m *Manager) WithPage(ctx context.Context, opts PageOptions, fn func(page playwright.Page) error) error {
	sess, err := m.store.Active(time.Now())
	if err != nil {
		return err
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for browser slot: %w", err)
	}
	defer m.sem.Release(1)

	m.active.Add(1)
	defer m.active.Add(-1)

	page, cleanup, err := m.openPage(sess, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(page)
}

// openPage launches a browser and creates a page seeded with the session
// state. The returned cleanup closes page, context, and browser in order.
func (m *Manager) openPage(sess *session.Session, opts PageOptions) (playwright.Page, func(), error) {
	m.mu.Lock()
	pw := m.pw
	initialized := m.initialized
	m.mu.Unlock()

	if !initialized {
		return nil, nil, fmt.Errorf("browser manager not initialized")
	}

	headless := m.cfg.Headless
	if opts.Headless != nil {
		headless = *opts.Headless
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	}
	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.cfg.Width,
			Height: m.cfg.Height,
		},
		StorageState:    sess.ContextState(),
		AcceptDownloads: playwright.Bool(true),
	}
	browserCtx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(m.cfg.ActionTimeout().Milliseconds()))

	cleanup := func() {
		_ = page.Close()       // Ignore errors, continue cleanup
		_ = browserCtx.Close() // Ignore errors, continue cleanup
		_ = browser.Close()    // Ignore errors, continue cleanup
	}
	return page, cleanup, nil
}

// Shutdown stops the playwright driver. Open pages are closed by their
// owners' deferred cleanups before this is called.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized && m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}

// Store exposes the backing session store.
func (m *Manager) Store() *session.Store {
	return m.store
}
