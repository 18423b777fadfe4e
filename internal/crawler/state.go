// Package crawler drives batch discovery runs: a rotation cursor over
// the flattened task list, persisted between invocations, with
// quota-aware early stop.
package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arbminer/arbminer/internal/domain"
)

// StateStore persists the crawler rotation cursor as a small JSON
// document. Writes go to a temp file in the same directory and are
// renamed into place, so a crash never leaves a torn state file.
type StateStore struct {
	path     string
	lockPath string
}

// NewStateStore creates a store for the given state file path.
func NewStateStore(path string) *StateStore {
	return &StateStore{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Load reads the persisted state. A missing file yields the fresh
// state (LastTaskIndex -1), not an error.
func (s *StateStore) Load() (domain.CrawlerState, error) {
	fresh := domain.CrawlerState{LastTaskIndex: -1}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fresh, nil
	}
	if err != nil {
		return fresh, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}

	var state domain.CrawlerState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fresh, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes the state atomically.
func (s *StateStore) Save(state domain.CrawlerState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Reset deletes the persisted state.
func (s *StateStore) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// Lock takes the single-writer lock. Concurrent invocations against
// the same state file are not supported; the second caller gets an
// error naming the lock file.
func (s *StateStore) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("another crawler invocation holds the lock (%s)", s.lockPath)
		}
		return fmt.Errorf("failed to take lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f.Close()
}

// Unlock releases the lock.
func (s *StateStore) Unlock() {
	os.Remove(s.lockPath)
}
