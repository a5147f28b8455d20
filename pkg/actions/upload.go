package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/framelight/deckhand/pkg/locator"
)

// UploadFiles sends local files through the folder's upload input and
// verifies each one appears in the listing. Paths are checked before any
// portal interaction so a typo fails fast.
func (a *Actions) UploadFiles(ctx context.Context, scope locator.Scope, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files to upload")
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("upload source %q: %w", path, err)
		}
	}

	return a.do(ctx, "upload files", func() error {
		input, err := a.resolver.Resolve(ctx, scope, locator.VaultUploadInput)
		if err != nil {
			// Some portals keep the input detached until the button is
			// clicked once.
			button, berr := a.resolver.Resolve(ctx, scope, locator.VaultUploadButton)
			if berr != nil {
				return err
			}
			if cerr := a.click(button); cerr != nil {
				return fmt.Errorf("opening upload control: %w", cerr)
			}
			a.settle(ctx)
			input, err = a.resolver.Resolve(ctx, scope, locator.VaultUploadInput)
			if err != nil {
				return err
			}
		}

		if err := input.SetInputFiles(paths); err != nil {
			return fmt.Errorf("attaching files: %w", err)
		}
		a.settle(ctx)

		for _, path := range paths {
			name := filepath.Base(path)
			if !a.visibleWithin(ctx, scope, locator.VaultFileRow(name), a.cfg.ActionTimeout()) {
				return &VerificationError{Action: "upload files", Expected: fmt.Sprintf("%q listed in folder", name)}
			}
		}
		return nil
	})
}
