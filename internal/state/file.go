package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists state as a JSON snapshot on local disk. Writes go
// through a temp file and rename so a crash mid-write never corrupts the
// previous snapshot.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store at the given path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With("store", "file"),
	}
}

var _ Store = (*FileStore)(nil)

// Load reads the snapshot. Missing or unreadable files yield a fresh state.
func (f *FileStore) Load(_ context.Context) *BotState {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("state file unreadable, starting fresh", "path", f.path, "error", err)
		}
		return NewBotState()
	}

	s := NewBotState()
	if err := json.Unmarshal(data, s); err != nil {
		f.logger.Warn("state file corrupt, starting fresh", "path", f.path, "error", err)
		return NewBotState()
	}
	return s
}

// Save writes the snapshot atomically.
func (f *FileStore) Save(_ context.Context, s *BotState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &PersistenceError{Backend: "file", Err: err}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Backend: "file", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".gmbot-state-*")
	if err != nil {
		return &PersistenceError{Backend: "file", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Backend: "file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Backend: "file", Err: err}
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Backend: "file", Err: err}
	}
	return nil
}
