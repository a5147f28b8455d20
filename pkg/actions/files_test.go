package actions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelight/deckhand/pkg/locator"
)

func TestMatcherContainment(t *testing.T) {
	m, err := NewMatcher([]string{"brief"})
	require.NoError(t, err)

	assert.True(t, m.Match("campaign-brief.pdf"))
	assert.True(t, m.Match("BRIEF_v2.docx"), "containment ignores case")
	assert.False(t, m.Match("storyboard.png"))
}

func TestMatcherGlob(t *testing.T) {
	m, err := NewMatcher([]string{"*.pdf"})
	require.NoError(t, err)

	assert.True(t, m.Match("brief.pdf"))
	assert.False(t, m.Match("brief.pdf.bak"))
	assert.False(t, m.Match("brief.png"))
}

func TestMatcherSingleCharacterWildcard(t *testing.T) {
	m, err := NewMatcher([]string{"cut-v?.mp4"})
	require.NoError(t, err)

	assert.True(t, m.Match("cut-v1.mp4"))
	assert.True(t, m.Match("cut-v2.mp4"))
	assert.False(t, m.Match("cut-v10.mp4"))
}

func TestMatcherMixedSelections(t *testing.T) {
	m, err := NewMatcher([]string{"notes", "*.mp4"})
	require.NoError(t, err)

	assert.True(t, m.Match("meeting-notes.txt"))
	assert.True(t, m.Match("final.mp4"))
	assert.False(t, m.Match("brief.pdf"))
}

func TestMatcherInvalidPattern(t *testing.T) {
	_, err := NewMatcher([]string{"[unclosed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[unclosed")
}

func TestMatcherEmpty(t *testing.T) {
	m, err := NewMatcher(nil)
	require.NoError(t, err)
	assert.True(t, m.Empty())

	m, err = NewMatcher([]string{""})
	require.NoError(t, err)
	assert.True(t, m.Empty(), "blank selections are dropped")

	m, err = NewMatcher([]string{"x"})
	require.NoError(t, err)
	assert.False(t, m.Empty())
}

// listingScope simulates an open folder: the name cells report names, row
// clicks are recorded, and rows report themselves selected afterwards.
type listingScope struct {
	names   []string
	clicked []string
}

func (s *listingScope) Locator(selector string) playwright.Locator {
	return &rowLocator{selector: selector, scope: s}
}

type rowLocator struct {
	embeddedLocator
	selector string
	scope    *listingScope
}

func (l *rowLocator) AllInnerTexts() ([]string, error) {
	if strings.Contains(l.selector, "asset-name") {
		return l.scope.names, nil
	}
	return nil, nil
}

func (l *rowLocator) Click(options ...playwright.LocatorClickOptions) error {
	l.scope.clicked = append(l.scope.clicked, l.selector)
	return nil
}

func (l *rowLocator) GetAttribute(name string, options ...playwright.LocatorGetAttributeOptions) (string, error) {
	if name == "aria-selected" {
		return "true", nil
	}
	return "", nil
}

// listingProbe resolves everything except row checkboxes, forcing selection
// through the row-click path.
func listingProbe(scope locator.Scope, selector string, timeout time.Duration) (playwright.Locator, bool) {
	if strings.Contains(selector, "checkbox") {
		return nil, false
	}
	return scope.Locator(selector), true
}

func TestSelectMatchingSelectsInListingOrder(t *testing.T) {
	scope := &listingScope{names: []string{"brief.pdf", "storyboard.png", "cut-v2.mp4", "notes.txt"}}
	a := New(locator.NewResolver(time.Millisecond).WithProbe(listingProbe), timingConfig())

	m, err := NewMatcher([]string{"*.pdf", "cut"})
	require.NoError(t, err)

	selected, err := a.SelectMatching(context.Background(), scope, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"brief.pdf", "cut-v2.mp4"}, selected)

	require.Len(t, scope.clicked, 2)
	assert.Contains(t, scope.clicked[0], "brief.pdf")
	assert.Contains(t, scope.clicked[1], "cut-v2.mp4")
}

func TestSelectMatchingNoMatches(t *testing.T) {
	scope := &listingScope{names: []string{"brief.pdf"}}
	a := New(locator.NewResolver(time.Millisecond).WithProbe(listingProbe), timingConfig())

	m, err := NewMatcher([]string{"*.mp4"})
	require.NoError(t, err)

	selected, err := a.SelectMatching(context.Background(), scope, m)
	require.NoError(t, err)
	assert.Empty(t, selected)
	assert.Empty(t, scope.clicked)
}

func TestListFileNamesEmptyFolder(t *testing.T) {
	scope := &listingScope{}
	a := New(locator.NewResolver(time.Millisecond).WithProbe(listingProbe), timingConfig())

	names, err := a.ListFileNames(context.Background(), scope)
	require.NoError(t, err)
	assert.Empty(t, names, "an empty folder lists nothing and is not an error")
}

func TestListFileNamesTrimsBlankEntries(t *testing.T) {
	scope := &listingScope{names: []string{"  brief.pdf  ", "", "cut.mp4"}}
	a := New(locator.NewResolver(time.Millisecond).WithProbe(listingProbe), timingConfig())

	names, err := a.ListFileNames(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"brief.pdf", "cut.mp4"}, names)
}
