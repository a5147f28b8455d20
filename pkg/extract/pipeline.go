// Package extract walks vault folders and materializes the visible file
// listing into records for downstream persistence.
package extract

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/actions"
	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/logging"
)

// Record is one discovered (folder, file) pair. Records are never mutated
// after creation, only superseded by re-extraction.
type Record struct {
	FolderName string `json:"folderName"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	SourceURL  string `json:"sourceUrl,omitempty"`
}

// File is one entry in grouped extraction output.
type File struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Folder groups the files discovered under one folder.
type Folder struct {
	Name  string `json:"name"`
	Files []File `json:"files"`
}

// Result is the grouped output of a multi-folder walk.
type Result struct {
	Folders      []Folder `json:"folders"`
	TotalFolders int      `json:"totalFolders"`
	TotalFiles   int      `json:"totalFiles"`
}

// rowCandidates enumerate file-row markup across portal skins, most
// specific first.
var rowCandidates = []string{
	`[data-testid="asset-row"]`,
	`tr.asset-row`,
	`.file-card`,
	`[role="row"]`,
}

// Pipeline enumerates vault folder contents through the shared action
// primitives.
type Pipeline struct {
	acts   *actions.Actions
	logger *logging.Logger
}

// New creates a Pipeline on top of acts.
func New(acts *actions.Actions) *Pipeline {
	logger, _ := logging.NewLogger("extract")
	return &Pipeline{acts: acts, logger: logger}
}

// Folder navigates to folderName and returns one record per visible file.
// An empty folder yields an empty slice; the error is non-nil only when
// navigation itself fails.
func (p *Pipeline) Folder(ctx context.Context, page playwright.Page, folderName string) ([]Record, error) {
	if err := p.acts.NavigateToFolder(ctx, page, folderName); err != nil {
		return nil, err
	}
	scope := locator.PageScope(page)

	records, err := p.fromRowMarkup(ctx, scope, folderName)
	if err != nil {
		return nil, err
	}
	if records != nil {
		return records, nil
	}

	// No row markup matched; fall back to accessible text.
	names, err := p.acts.ListFileNames(ctx, scope)
	if err != nil {
		return nil, err
	}
	records = make([]Record, 0, len(names))
	for _, name := range names {
		records = append(records, Record{
			FolderName: folderName,
			FileName:   name,
			FileType:   DeriveType(name),
		})
	}
	return records, nil
}

// All walks folders in declared order and groups records per folder.
func (p *Pipeline) All(ctx context.Context, page playwright.Page, folders []string) (*Result, error) {
	result := &Result{Folders: make([]Folder, 0, len(folders))}
	for _, name := range folders {
		records, err := p.Folder(ctx, page, name)
		if err != nil {
			return nil, fmt.Errorf("folder %q: %w", name, err)
		}
		folder := Folder{Name: name, Files: make([]File, 0, len(records))}
		for _, rec := range records {
			folder.Files = append(folder.Files, File{Name: rec.FileName, Type: rec.FileType, URL: rec.SourceURL})
		}
		result.Folders = append(result.Folders, folder)
		result.TotalFiles += len(folder.Files)
		p.logger.Infof("extracted folder %q: %d files", name, len(folder.Files))
	}
	result.TotalFolders = len(result.Folders)
	return result, nil
}

// fromRowMarkup parses per-row innerHTML for names and source links. It
// returns nil (not an empty slice) when no candidate selector matched any
// row, so the caller can fall back.
func (p *Pipeline) fromRowMarkup(ctx context.Context, scope locator.Scope, folderName string) ([]Record, error) {
	for _, selector := range rowCandidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := scope.Locator(selector).All()
		if err != nil || len(rows) == 0 {
			continue
		}
		records := make([]Record, 0, len(rows))
		for _, row := range rows {
			raw, err := row.InnerHTML()
			if err != nil {
				continue
			}
			info, err := parseRow(raw)
			if err != nil || info.Name == "" {
				continue
			}
			records = append(records, Record{
				FolderName: folderName,
				FileName:   info.Name,
				FileType:   DeriveType(info.Name),
				SourceURL:  info.Href,
			})
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}
