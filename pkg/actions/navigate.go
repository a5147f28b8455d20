package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/locator"
)

// OpenVault navigates the page to the vault entry point and waits for the
// asset browser to be usable.
func (a *Actions) OpenVault(ctx context.Context, page playwright.Page, baseURL string) error {
	url := strings.TrimSuffix(baseURL, "/")
	return a.do(ctx, "open vault", func() error {
		if _, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(a.cfg.NavTimeout().Milliseconds())),
		}); err != nil {
			return fmt.Errorf("navigation to vault failed: %w", err)
		}
		a.settle(ctx)
		return nil
	})
}

// NavigateToFolder clicks through the folder tree to the named folder and
// verifies arrival via breadcrumb or a visible file list. A folder that
// cannot be located at all yields FolderNotFoundError; an empty folder is
// a successful navigation.
func (a *Actions) NavigateToFolder(ctx context.Context, page playwright.Page, folder string) error {
	scope := locator.PageScope(page)

	err := a.do(ctx, "navigate to folder", func() error {
		row, err := a.resolver.Resolve(ctx, scope, locator.VaultFolderRow(folder))
		if err != nil {
			return err
		}
		if err := a.click(row); err != nil {
			return fmt.Errorf("opening folder %q: %w", folder, err)
		}
		a.settle(ctx)

		if a.resolver.Visible(ctx, scope, locator.VaultBreadcrumb(folder)) {
			return nil
		}
		if a.resolver.Visible(ctx, scope, locator.VaultFileList) {
			return nil
		}
		return &VerificationError{Action: "navigate to folder", Expected: fmt.Sprintf("folder %q open", folder)}
	})

	var notFound *locator.NotFoundError
	if errors.As(err, &notFound) {
		return &FolderNotFoundError{Folder: folder}
	}
	return err
}
