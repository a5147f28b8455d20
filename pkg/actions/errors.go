package actions

import (
	"fmt"
	"time"
)

// VerificationError reports that an interaction was performed but its
// observable outcome never appeared.
type VerificationError struct {
	Action   string
	Expected string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s verification failed: %s", e.Action, e.Expected)
}

// DownloadTimeoutError reports that no download completed within the
// overall bound.
type DownloadTimeoutError struct {
	Timeout time.Duration
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("no download completed within %s", e.Timeout)
}

// FolderNotFoundError reports that folder navigation could not locate the
// requested folder at all. An empty folder is not this error.
type FolderNotFoundError struct {
	Folder string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder %q not found", e.Folder)
}
