package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/session"
)

// LoginTimeoutError reports that the operator did not reach the
// authenticated portal within the login window.
type LoginTimeoutError struct {
	Timeout time.Duration
}

func (e *LoginTimeoutError) Error() string {
	return fmt.Sprintf("login not completed within %s", e.Timeout)
}

// Login runs the interactive authentication flow: a visible browser opens
// the portal sign-in page, the operator authenticates by hand (including
// any second factor), and once the post-login URL marker appears the
// browser state is captured and persisted. Only one login runs at a time.
func (m *Manager) Login(ctx context.Context) (*session.Session, error) {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	m.mu.Lock()
	pw := m.pw
	initialized := m.initialized
	m.mu.Unlock()

	if !initialized {
		return nil, fmt.Errorf("browser manager not initialized")
	}
	if m.vault.BaseURL == "" {
		return nil, fmt.Errorf("vault base URL not configured")
	}

	m.loggingIn.Store(true)
	defer m.loggingIn.Store(false)

	// Login is always headful; the whole point is a human at the keyboard.
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch login browser: %w", err)
	}
	defer browser.Close()

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.cfg.Width,
			Height: m.cfg.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create login page: %w", err)
	}
	defer page.Close()

	loginURL := strings.TrimSuffix(m.vault.BaseURL, "/") + m.vault.LoginPath
	if _, err := page.Goto(loginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}

	m.logger.Infof("waiting for operator login at %s", loginURL)
	if err := m.waitForLogin(ctx, page); err != nil {
		return nil, err
	}

	state, err := browserCtx.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to capture browser state: %w", err)
	}

	sess, err := m.store.Save(state)
	if err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.logger.Infof("login captured, session valid until %s", sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// waitForLogin polls the page URL until the authenticated marker appears.
// The operator may traverse any number of intermediate identity-provider
// pages; only the final marker matters.
func (m *Manager) waitForLogin(ctx context.Context, page playwright.Page) error {
	timeout := time.After(m.cfg.LoginTimeout())
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return &LoginTimeoutError{Timeout: m.cfg.LoginTimeout()}
		case <-ticker.C:
			if strings.Contains(page.URL(), m.vault.HomeMarker) {
				return nil
			}
		}
	}
}
