package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/locator"
)

// SubmitComment posts a comment on the current asset. Mentions are typed
// with the @ prefix; when the portal offers a matching suggestion it is
// selected so the mention becomes a real user reference, otherwise the
// text stays as typed. Verification requires the posted comment to appear
// in the thread.
func (a *Actions) SubmitComment(ctx context.Context, scope locator.Scope, text string, mentions []string) error {
	if strings.TrimSpace(text) == "" && len(mentions) == 0 {
		return fmt.Errorf("comment text is empty")
	}

	return a.do(ctx, "submit comment", func() error {
		box, err := a.resolver.Resolve(ctx, scope, locator.VaultCommentBox)
		if err != nil {
			return err
		}
		if err := a.click(box); err != nil {
			return fmt.Errorf("focusing comment box: %w", err)
		}

		if err := box.Fill(text); err != nil {
			// Some rich-text editors reject Fill; type instead.
			if err := box.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
				Delay: playwright.Float(20),
			}); err != nil {
				return fmt.Errorf("entering comment text: %w", err)
			}
		}

		for _, mention := range mentions {
			if err := a.typeMention(ctx, scope, box, mention); err != nil {
				return err
			}
		}

		submit, err := a.resolver.Resolve(ctx, scope, locator.VaultCommentSubmit)
		if err != nil {
			return err
		}
		if err := a.click(submit); err != nil {
			return fmt.Errorf("posting comment: %w", err)
		}
		a.settle(ctx)

		snippet := commentSnippet(text, mentions)
		if !a.visibleWithin(ctx, scope, locator.VaultCommentEntry(snippet), a.cfg.ActionTimeout()) {
			return &VerificationError{Action: "submit comment", Expected: "comment visible in thread"}
		}
		return nil
	})
}

// typeMention appends one @mention to the open composer. A matching
// suggestion upgrades it to a structured reference; no suggestion leaves
// plain text, which the portals render as-is.
func (a *Actions) typeMention(ctx context.Context, scope locator.Scope, box playwright.Locator, mention string) error {
	if err := box.PressSequentially(" @"+mention, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(50),
	}); err != nil {
		return fmt.Errorf("typing mention %q: %w", mention, err)
	}

	option, err := a.resolver.Resolve(ctx, scope, locator.VaultMentionOption(mention))
	if err != nil {
		a.logger.Debugf("no mention suggestion for %q, leaving plain text", mention)
		return nil
	}
	if err := a.click(option); err != nil {
		a.logger.Debugf("mention suggestion for %q not clickable, leaving plain text: %v", mention, err)
	}
	return nil
}

// commentSnippet picks the text used to verify the posted comment.
func commentSnippet(text string, mentions []string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && len(mentions) > 0 {
		return mentions[0]
	}
	const max = 40
	if len(trimmed) > max {
		return trimmed[:max]
	}
	return trimmed
}
