package history

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RunRecord is the persisted summary of one workflow run.
type RunRecord struct {
	ID         string
	ProjectURL string
	State      string
	Error      string
	Summary    string
	StepsJSON  string // step outcomes stored as a JSON array
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// ExtractionRecord is the persisted snapshot of one vault extraction pass.
type ExtractionRecord struct {
	ID           string
	FoldersJSON  string // requested folder names stored as a JSON array
	ResultJSON   string // full extraction result stored as JSON
	TotalFolders int
	TotalFiles   int
	CreatedAt    time.Time
}

// AssetRecord is one archived file, keyed to the run or archive pass that
// captured it.
type AssetRecord struct {
	ID         int64
	RunID      string
	Folder     string
	FileName   string
	Size       int64
	StorageURL string
	Text       string
	CreatedAt  time.Time
}
