package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelight/deckhand/pkg/actions"
	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/pdftext"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "deckhand-archive-test")
	if err != nil {
		panic(err)
	}
	logging.SetDirectory(dir)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type fakeStore struct {
	mu      sync.Mutex
	uploads map[string]string
	bodies  map[string]string
	err     error
}

func (f *fakeStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if f.uploads == nil {
		f.uploads = map[string]string{}
		f.bodies = map[string]string{}
	}
	f.uploads[key] = contentType
	f.bodies[key] = string(data)
	return "https://archive.example.com/" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error { return nil }

// writeCapture drops a file into a temp dir and wraps it the way the
// download step hands captures over.
func writeCapture(t *testing.T, name, content string) actions.Download {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return actions.Download{FileName: name, Path: p}
}

func TestProcessStatsAndMirrors(t *testing.T) {
	st := &fakeStore{}
	a := New(nil, st)
	dl := writeCapture(t, "brief.txt", "shot list attached")

	asset, failures := a.process(context.Background(), "Q3 Campaign", dl)
	require.Empty(t, failures)

	assert.Equal(t, "brief.txt", asset.FileName)
	assert.Equal(t, dl.Path, asset.LocalPath)
	assert.Equal(t, int64(len("shot list attached")), asset.Size)
	assert.Equal(t, "https://archive.example.com/Q3 Campaign/brief.txt", asset.StorageURL)
	assert.Empty(t, asset.Text)

	require.Contains(t, st.uploads, "Q3 Campaign/brief.txt")
	assert.Contains(t, st.uploads["Q3 Campaign/brief.txt"], "text/plain")
	assert.Equal(t, "shot list attached", st.bodies["Q3 Campaign/brief.txt"])
}

func TestProcessRecordsUploadFailure(t *testing.T) {
	st := &fakeStore{err: errors.New("bucket sealed")}
	a := New(nil, st)
	dl := writeCapture(t, "cut_v2.mov", "mov-bytes")

	asset, failures := a.process(context.Background(), "Dailies", dl)

	assert.Empty(t, asset.StorageURL)
	assert.Equal(t, int64(len("mov-bytes")), asset.Size)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "cut_v2.mov")
	assert.Contains(t, failures[0], "upload")
	assert.Contains(t, failures[0], "bucket sealed")
}

func TestProcessExtractsPDFText(t *testing.T) {
	a := New(nil, nil)
	var extracted string
	a.extract = func(path string) (*pdftext.Document, error) {
		extracted = path
		return &pdftext.Document{Text: "Budget locked.\n", Annotations: []string{"Check totals"}}, nil
	}
	dl := writeCapture(t, "notes.PDF", "%PDF-1.4")

	asset, failures := a.process(context.Background(), "Finance", dl)
	require.Empty(t, failures)

	assert.Equal(t, dl.Path, extracted)
	assert.Equal(t, "Budget locked.\n\nCheck totals", asset.Text)
}

func TestProcessRecordsExtractionFailure(t *testing.T) {
	a := New(nil, nil)
	a.extract = func(string) (*pdftext.Document, error) {
		return nil, errors.New("pdf parsing failed: bad xref")
	}
	dl := writeCapture(t, "scan.pdf", "not a pdf")

	asset, failures := a.process(context.Background(), "Legal", dl)

	assert.Empty(t, asset.Text)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "scan.pdf")
	assert.Contains(t, failures[0], "text extraction")
}

func TestProcessWithoutStoreKeepsLocalOnly(t *testing.T) {
	a := New(nil, nil)
	dl := writeCapture(t, "logo.png", "png")

	asset, failures := a.process(context.Background(), "Brand", dl)

	require.Empty(t, failures)
	assert.Empty(t, asset.StorageURL)
	assert.Equal(t, int64(3), asset.Size)
}

func TestArchiveRejectsInvalidPattern(t *testing.T) {
	a := New(nil, nil)

	_, err := a.Archive(context.Background(), nil, "Dailies", []string{"[broken"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid selection pattern")
}

func TestArchiveFolderNotFound(t *testing.T) {
	resolver := locator.NewResolver(time.Millisecond).WithProbe(
		func(locator.Scope, string, time.Duration) (playwright.Locator, bool) {
			return nil, false
		})
	acts := actions.New(resolver, config.BrowserConfig{
		RetryAttempts:           2,
		RetryDelayMillis:        1,
		StabilizationWaitMillis: 1,
	})
	a := New(acts, nil)

	_, err := a.Archive(context.Background(), nil, "Lost Reels", []string{"*.pdf"}, t.TempDir())
	require.Error(t, err)
	var notFound *actions.FolderNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Lost Reels", notFound.Folder)
}
