// Package archive downloads selected vault files and mirrors them into
// object storage, extracting text from PDFs along the way.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/actions"
	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/pdftext"
	"github.com/framelight/deckhand/pkg/storage"
)

// Asset is one archived file: the local capture plus whatever mirroring and
// text extraction produced for it.
type Asset struct {
	FileName   string `json:"fileName"`
	LocalPath  string `json:"localPath"`
	Size       int64  `json:"size"`
	StorageURL string `json:"storageUrl,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Result collects the assets and per-file failures of one archive pass.
type Result struct {
	Folder   string   `json:"folder"`
	Assets   []Asset  `json:"assets"`
	Failures []string `json:"failures,omitempty"`
}

// Archiver captures vault files to disk and mirrors them to object storage.
type Archiver struct {
	acts    *actions.Actions
	store   storage.ObjectStore
	logger  *logging.Logger
	extract func(path string) (*pdftext.Document, error)
}

// New creates an Archiver. store may be nil when object storage is not
// configured; captured files then stay local only.
func New(acts *actions.Actions, store storage.ObjectStore) *Archiver {
	logger, _ := logging.NewLogger("archive")
	return &Archiver{acts: acts, store: store, logger: logger, extract: pdftext.ExtractFile}
}

// Archive selects every file in folder matching patterns, downloads the
// selection to destDir and post-processes each captured file. Per-file
// upload and extraction failures are recorded on the result rather than
// returned; partial results mirror download semantics.
func (a *Archiver) Archive(ctx context.Context, page playwright.Page, folder string, patterns []string, destDir string) (*Result, error) {
	matcher, err := actions.NewMatcher(patterns)
	if err != nil {
		return nil, err
	}
	if err := a.acts.NavigateToFolder(ctx, page, folder); err != nil {
		return nil, err
	}
	scope := locator.PageScope(page)

	selected, err := a.acts.SelectMatching(ctx, scope, matcher)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no files in folder %q matched the selection", folder)
	}

	downloads, err := a.acts.DownloadSelected(ctx, page, destDir)
	if err != nil {
		return nil, err
	}

	result := &Result{Folder: folder, Assets: make([]Asset, 0, len(downloads))}
	for _, dl := range downloads {
		asset, failures := a.process(ctx, folder, dl)
		result.Assets = append(result.Assets, asset)
		result.Failures = append(result.Failures, failures...)
	}
	a.logger.Infof("archived folder %q: %d asset(s), %d failure(s)", folder, len(result.Assets), len(result.Failures))
	return result, nil
}

// process stats, mirrors and extracts one captured file. Failures degrade
// the asset instead of dropping it.
func (a *Archiver) process(ctx context.Context, folder string, dl actions.Download) (Asset, []string) {
	asset := Asset{FileName: dl.FileName, LocalPath: dl.Path}
	var failures []string

	if info, err := os.Stat(dl.Path); err == nil {
		asset.Size = info.Size()
	}

	if a.store != nil {
		url, err := a.mirror(ctx, folder, dl)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: upload: %v", dl.FileName, err))
			a.logger.Warnf("mirroring %q failed: %v", dl.FileName, err)
		} else {
			asset.StorageURL = url
		}
	}

	if strings.EqualFold(filepath.Ext(dl.FileName), ".pdf") {
		doc, err := a.extract(dl.Path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: text extraction: %v", dl.FileName, err))
			a.logger.Warnf("extracting text from %q failed: %v", dl.FileName, err)
		} else {
			text := strings.TrimSpace(doc.Text)
			if len(doc.Annotations) > 0 {
				text = strings.TrimSpace(text + "\n\n" + strings.Join(doc.Annotations, "\n"))
			}
			asset.Text = text
		}
	}

	return asset, failures
}

// mirror uploads one captured file under folder/name.
func (a *Archiver) mirror(ctx context.Context, folder string, dl actions.Download) (string, error) {
	f, err := os.Open(dl.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	key := path.Join(folder, dl.FileName)
	return a.store.Upload(ctx, key, f, storage.ContentTypeFor(dl.FileName))
}
