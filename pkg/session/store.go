package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/logging"
)

// Store persists one session to a JSON file. Writes are atomic
// (temp file plus rename) so a crash mid-save never leaves a torn file.
type Store struct {
	path   string
	ttl    time.Duration
	mu     sync.Mutex
	logger *logging.Logger
}

// NewStore creates a session store at path. If path is empty, defaults to
// ~/.deckhand/session.json. The directory is created on first save.
func NewStore(path string, ttl time.Duration) (*Store, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".deckhand", "session.json")
	}

	logger, _ := logging.NewLogger("session")

	return &Store{
		path:   path,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Save captures the browser state as a new session stamped with the current
// validity window and writes it to disk.
func (s *Store) Save(state *playwright.StorageState) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &Session{
		State:     *state,
		SavedAt:   now,
		ExpiresAt: now.Add(s.ttl),
		IsValid:   true,
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	// Temp file for atomic write
	tempPath := s.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp session file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sess); err != nil {
		file.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.logger.Infof("session saved, valid until %s", sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// Load reads the persisted session. A missing file returns (nil, nil): no
// session is a normal state, not an error. A corrupt file is also treated
// as no session, with a warning logged. Genuine I/O failures return errors.
func (s *Store) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warnf("session file %s is corrupt, treating as no session: %v", s.path, err)
		return nil, nil
	}

	return &sess, nil
}

// Active returns the persisted session if it is still valid at now.
// Missing, corrupt, expired, and invalidated sessions all yield
// ErrAuthenticationRequired.
func (s *Store) Active(now time.Time) (*Session, error) {
	sess, err := s.Load()
	if err != nil {
		return nil, err
	}
	if !sess.Valid(now) {
		return nil, ErrAuthenticationRequired
	}
	return sess, nil
}

// Clear removes the persisted session. Clearing an absent session is a
// no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Path returns the file path of the store.
func (s *Store) Path() string {
	return s.path
}

// TTL returns the validity window applied at save time.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
