package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/locator"
)

// Matcher decides which listed files a selection refers to. A selection
// containing glob metacharacters is compiled as a pattern; anything else
// matches by case-insensitive containment.
type Matcher struct {
	contains []string
	patterns []glob.Glob
}

// NewMatcher compiles the selection list.
func NewMatcher(selections []string) (*Matcher, error) {
	m := &Matcher{}
	for _, sel := range selections {
		if sel == "" {
			continue
		}
		if hasGlobMeta(sel) {
			g, err := glob.Compile(sel)
			if err != nil {
				return nil, fmt.Errorf("invalid selection pattern '%s': %w", sel, err)
			}
			m.patterns = append(m.patterns, g)
			continue
		}
		m.contains = append(m.contains, strings.ToLower(sel))
	}
	return m, nil
}

// Match reports whether a file name is covered by the selection.
func (m *Matcher) Match(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range m.contains {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	for _, pattern := range m.patterns {
		if pattern.Match(name) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher has no usable selections.
func (m *Matcher) Empty() bool {
	return len(m.contains) == 0 && len(m.patterns) == 0
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// fileNameCandidates locate the name cell of listed files, in stability
// order. Used for listing, not resolution, so it lives here rather than in
// the target registry.
var fileNameCandidates = []string{
	`[data-testid="asset-row"] [data-testid="asset-name"]`,
	`tr.asset-row td.name`,
	`[role="row"] [role="gridcell"]:first-child`,
	`.file-card .file-name`,
}

// ListFileNames returns the file names visible in the open folder. An empty
// folder yields an empty slice, not an error.
func (a *Actions) ListFileNames(ctx context.Context, scope locator.Scope) ([]string, error) {
	if _, err := a.resolver.Resolve(ctx, scope, locator.VaultFileList); err != nil {
		return nil, err
	}

	for _, selector := range fileNameCandidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		texts, err := scope.Locator(selector).AllInnerTexts()
		if err != nil || len(texts) == 0 {
			continue
		}
		names := make([]string, 0, len(texts))
		for _, text := range texts {
			if name := strings.TrimSpace(text); name != "" {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			return names, nil
		}
	}
	return nil, nil
}

// SelectFile marks a single file as selected and verifies the row state.
func (a *Actions) SelectFile(ctx context.Context, scope locator.Scope, name string) error {
	return a.do(ctx, "select file", func() error {
		// Prefer the row checkbox; fall back to clicking the row itself.
		if box, err := a.resolver.Resolve(ctx, scope, locator.VaultFileRowCheckbox(name)); err == nil {
			if err := a.click(box); err != nil {
				return err
			}
			a.settle(ctx)
			if checked, err := box.IsChecked(); err == nil && !checked {
				return &VerificationError{Action: "select file", Expected: fmt.Sprintf("checkbox for %q checked", name)}
			}
			return nil
		}

		row, err := a.resolver.Resolve(ctx, scope, locator.VaultFileRow(name))
		if err != nil {
			return err
		}
		if err := a.click(row); err != nil {
			return err
		}
		a.settle(ctx)
		return a.verifyRowSelected(row, name)
	})
}

// verifyRowSelected accepts any of the selection conventions portals use.
// A row exposing none of them passes; absence of signal is not failure.
func (a *Actions) verifyRowSelected(row playwright.Locator, name string) error {
	if selected, err := row.GetAttribute("aria-selected"); err == nil && selected != "" {
		if selected != "true" {
			return &VerificationError{Action: "select file", Expected: fmt.Sprintf("row %q marked selected", name)}
		}
		return nil
	}
	if class, err := row.GetAttribute("class"); err == nil && strings.Contains(class, "selected") {
		return nil
	}
	// No selection signal exposed; treat the click as accepted.
	return nil
}

// SelectMatching selects every listed file covered by the matcher and
// returns the selected names in listing order.
func (a *Actions) SelectMatching(ctx context.Context, scope locator.Scope, matcher *Matcher) ([]string, error) {
	names, err := a.ListFileNames(ctx, scope)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return selected, err
		}
		if !matcher.Match(name) {
			continue
		}
		if err := a.SelectFile(ctx, scope, name); err != nil {
			return selected, fmt.Errorf("selecting %q: %w", name, err)
		}
		selected = append(selected, name)
	}
	return selected, nil
}
