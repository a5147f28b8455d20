package actions

import (
	"context"
	"fmt"

	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/teams"
)

// Permission levels a share recipient can be granted.
const (
	PermissionView     = "view"
	PermissionComment  = "comment"
	PermissionDownload = "download"
	PermissionEdit     = "edit"
)

// OpenShareDialog opens the share dialog for the current selection and
// verifies it appeared.
func (a *Actions) OpenShareDialog(ctx context.Context, scope locator.Scope) error {
	return a.do(ctx, "open share dialog", func() error {
		button, err := a.resolver.Resolve(ctx, scope, locator.VaultShareButton)
		if err != nil {
			return err
		}
		if err := a.click(button); err != nil {
			return fmt.Errorf("clicking share button: %w", err)
		}
		a.settle(ctx)

		if !a.resolver.Visible(ctx, scope, locator.VaultShareDialog) {
			return &VerificationError{Action: "open share dialog", Expected: "share dialog visible"}
		}
		return nil
	})
}

// AddRecipient enters one recipient into the open share dialog. The email
// goes into the recipient field; if the portal offers an autocomplete
// suggestion it is clicked, otherwise Enter confirms free-form entry.
// Verification requires the recipient chip. Permission assignment is
// best-effort afterwards.
func (a *Actions) AddRecipient(ctx context.Context, scope locator.Scope, member teams.Member, permission string) error {
	identifier := member.Email
	if identifier == "" {
		identifier = member.Name
	}

	err := a.do(ctx, "add recipient", func() error {
		input, err := a.resolver.Resolve(ctx, scope, locator.VaultRecipientInput)
		if err != nil {
			return err
		}
		if err := input.Fill(identifier); err != nil {
			return fmt.Errorf("entering recipient %q: %w", identifier, err)
		}
		a.settle(ctx)

		// Autocomplete match confirms against the portal directory; free
		// form entry is the fallback for external addresses.
		if option, err := a.resolver.Resolve(ctx, scope, locator.VaultRecipientOption(identifier)); err == nil {
			if err := a.click(option); err != nil {
				return fmt.Errorf("choosing recipient suggestion: %w", err)
			}
		} else if err := input.Press("Enter"); err != nil {
			return fmt.Errorf("confirming recipient entry: %w", err)
		}
		a.settle(ctx)

		if !a.resolver.Visible(ctx, scope, locator.VaultRecipientChip(identifier)) {
			return &VerificationError{Action: "add recipient", Expected: fmt.Sprintf("chip for %q in dialog", identifier)}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if permission != "" {
		a.setPermission(ctx, scope, permission)
	}
	return nil
}

// setPermission applies a permission level to the most recently added
// recipient. Portals without a per-recipient menu simply do not expose the
// control, so absence is tolerated.
func (a *Actions) setPermission(ctx context.Context, scope locator.Scope, permission string) {
	menu, err := a.resolver.Resolve(ctx, scope, locator.VaultPermissionMenu)
	if err != nil {
		a.logger.Debugf("no permission menu, leaving portal default in place")
		return
	}
	if err := a.click(menu); err != nil {
		a.logger.Warnf("permission menu did not open: %v", err)
		return
	}
	a.settle(ctx)

	option, err := a.resolver.Resolve(ctx, scope, locator.VaultPermissionOption(permission))
	if err != nil {
		a.logger.Warnf("permission level %q not offered", permission)
		return
	}
	if err := a.click(option); err != nil {
		a.logger.Warnf("selecting permission %q failed: %v", permission, err)
	}
	a.settle(ctx)
}

// ConfirmShare submits the share dialog and waits for either the dialog to
// close or a success toast.
func (a *Actions) ConfirmShare(ctx context.Context, scope locator.Scope) error {
	return a.do(ctx, "confirm share", func() error {
		confirm, err := a.resolver.Resolve(ctx, scope, locator.VaultShareConfirm)
		if err != nil {
			return err
		}
		if err := a.click(confirm); err != nil {
			return fmt.Errorf("submitting share dialog: %w", err)
		}
		a.settle(ctx)

		if a.resolver.Visible(ctx, scope, locator.VaultShareToast) {
			return nil
		}
		if !a.resolver.Visible(ctx, scope, locator.VaultShareDialog) {
			// Dialog gone is the older portals' only success signal.
			return nil
		}
		return &VerificationError{Action: "confirm share", Expected: "dialog dismissed or confirmation shown"}
	})
}
