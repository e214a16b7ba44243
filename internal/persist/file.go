package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
)

const (
	defaultDir      = "event-analytics-sdk"
	defaultFilename = "events.json"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the list as one JSON array in a single file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. The parent directory is
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the per-user cache location of the queue file.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(dir, defaultDir, defaultFilename), nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the saved list. A missing file yields an empty list and no error.
func (s *FileStore) Load() ([]models.Event, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Event{}, nil
	}
	if err != nil {
		return []models.Event{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return []models.Event{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// SaveAll writes the list to a temp file next to the destination and renames
// it into place, so readers see either the old or the new list in full.
func (s *FileStore) SaveAll(events []models.Event) error {
	if events == nil {
		events = []models.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
