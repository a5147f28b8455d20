package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/actions"
	"github.com/framelight/deckhand/pkg/archive"
	"github.com/framelight/deckhand/pkg/browser"
	"github.com/framelight/deckhand/pkg/extract"
	"github.com/framelight/deckhand/pkg/history"
	"github.com/framelight/deckhand/pkg/session"
)

type extractRequest struct {
	Folders []string `json:"folders"`
}

type extractResponse struct {
	ExtractionID string `json:"extractionId"`
	*extract.Result
}

// handleExtract enumerates the requested vault folders on a borrowed page
// and returns the grouped file inventory.
func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if len(req.Folders) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one folder is required")
		return
	}

	var result *extract.Result
	err := s.deps.Browsers.WithPage(r.Context(), browser.PageOptions{}, func(page playwright.Page) error {
		var err error
		result, err = s.deps.Extractor.All(r.Context(), page, req.Folders)
		return err
	})
	if err != nil {
		portalError(w, "extraction", err)
		return
	}

	extractionID := uuid.NewString()
	if s.deps.History != nil {
		if err := s.saveExtraction(extractionID, req.Folders, result); err != nil {
			s.logger.Warnf("persisting extraction %s: %v", extractionID, err)
		}
	}

	s.logger.Infof("extraction %s: %d folder(s), %d file(s)", extractionID, result.TotalFolders, result.TotalFiles)
	writeJSON(w, http.StatusOK, extractResponse{ExtractionID: extractionID, Result: result})
}

func (s *server) saveExtraction(id string, folders []string, result *extract.Result) error {
	foldersJSON, err := json.Marshal(folders)
	if err != nil {
		return err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.deps.History.SaveExtraction(history.ExtractionRecord{
		ID:           id,
		FoldersJSON:  string(foldersJSON),
		ResultJSON:   string(resultJSON),
		TotalFolders: result.TotalFolders,
		TotalFiles:   result.TotalFiles,
		CreatedAt:    time.Now().UTC(),
	})
}

type archiveRequest struct {
	Folder   string   `json:"folder"`
	Patterns []string `json:"patterns"`
	DestDir  string   `json:"destDir,omitempty"`
}

type archiveResponse struct {
	ArchiveID string `json:"archiveId"`
	*archive.Result
}

// handleArchive downloads the matching files from one vault folder, mirrors
// them to object storage, and records the captured assets.
func (s *server) handleArchive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.Folder == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "folder is required")
		return
	}
	if len(req.Patterns) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one selection pattern is required")
		return
	}

	if s.deps.Downloads == nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "no download root configured")
		return
	}
	destDir, err := s.deps.Downloads.Resolve(req.DestDir)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}

	var result *archive.Result
	err = s.deps.Browsers.WithPage(r.Context(), browser.PageOptions{}, func(page playwright.Page) error {
		var err error
		result, err = s.deps.Archiver.Archive(r.Context(), page, req.Folder, req.Patterns, destDir)
		return err
	})
	if err != nil {
		portalError(w, "archive", err)
		return
	}

	archiveID := "archive-" + uuid.NewString()
	if s.deps.History != nil {
		now := time.Now().UTC()
		for _, asset := range result.Assets {
			rec := history.AssetRecord{
				RunID:      archiveID,
				Folder:     result.Folder,
				FileName:   asset.FileName,
				Size:       asset.Size,
				StorageURL: asset.StorageURL,
				Text:       asset.Text,
				CreatedAt:  now,
			}
			if err := s.deps.History.SaveAsset(rec); err != nil {
				s.logger.Warnf("persisting asset %s: %v", asset.FileName, err)
			}
		}
	}

	s.logger.Infof("archive %s: folder=%s assets=%d failures=%d", archiveID, result.Folder, len(result.Assets), len(result.Failures))
	writeJSON(w, http.StatusOK, archiveResponse{ArchiveID: archiveID, Result: result})
}

// portalError maps portal failures onto API statuses: missing session 401,
// unknown folder 404, everything else 502.
func portalError(w http.ResponseWriter, op string, err error) {
	var notFound *actions.FolderNotFoundError
	switch {
	case errors.Is(err, session.ErrAuthenticationRequired):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
	case errors.As(err, &notFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%s failed: %v", op, err)
	}
}
