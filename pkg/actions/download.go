package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/locator"
)

// Download is one captured file saved to local disk.
type Download struct {
	FileName string
	Path     string
}

// DownloadSelected triggers download of the current selection and captures
// whatever the portal emits: individual files or a bundled archive. The
// wait is bounded; once at least one file has arrived, a short quiet
// period ends collection. Zero captures within the bound is a timeout,
// while a partial capture is a normal result.
func (a *Actions) DownloadSelected(ctx context.Context, page playwright.Page, destDir string) ([]Download, error) {
	scope := locator.PageScope(page)

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	captured := make(chan playwright.Download, 32)
	page.OnDownload(func(dl playwright.Download) {
		select {
		case captured <- dl:
		default:
			a.logger.Warnf("download capture buffer full, dropped %q", dl.SuggestedFilename())
		}
	})

	button, err := a.resolver.Resolve(ctx, scope, locator.VaultDownloadButton)
	if err != nil {
		return nil, err
	}
	if err := a.click(button); err != nil {
		return nil, fmt.Errorf("clicking download: %w", err)
	}

	overall := time.After(a.cfg.DownloadTimeout())
	quiet := 4 * a.cfg.StabilizationWait()
	if quiet <= 0 {
		quiet = 2 * time.Second
	}

	var results []Download
	used := make(map[string]bool)
	for {
		// The quiet timer only arms once something has arrived; before
		// that, only the overall bound applies.
		var quietCh <-chan time.Time
		if len(results) > 0 {
			quietCh = time.After(quiet)
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-overall:
			if len(results) == 0 {
				return nil, &DownloadTimeoutError{Timeout: a.cfg.DownloadTimeout()}
			}
			a.logger.Warnf("download window closed with %d file(s) captured", len(results))
			return results, nil
		case <-quietCh:
			return results, nil
		case dl := <-captured:
			name := SanitizeFilename(dl.SuggestedFilename())
			path := uniquePath(destDir, name, used)
			if err := dl.SaveAs(path); err != nil {
				a.logger.Warnf("saving download %q failed: %v", name, err)
				continue
			}
			used[path] = true
			results = append(results, Download{FileName: filepath.Base(path), Path: path})
			a.logger.Infof("captured download %s", filepath.Base(path))
		}
	}
}

// SanitizeFilename makes a portal-suggested name safe as a local file
// name: path separators and control characters are stripped, and names
// that would vanish entirely become "download".
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteRune('_')
		case r < 0x20:
			// skip control characters
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ". ")
	if cleaned == "" {
		return "download"
	}
	return cleaned
}

// uniquePath returns a collision-free path for name inside dir, suffixing
// " (n)" before the extension when needed.
func uniquePath(dir, name string, used map[string]bool) string {
	path := filepath.Join(dir, name)
	if !used[path] && !fileExists(path) {
		return path
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if !used[candidate] && !fileExists(candidate) {
			return candidate
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
