package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists state as a single snapshot row in SQLite. It exists
// for deployments that already keep their other data in SQLite; behavior is
// interchangeable with the file and Redis backends.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.With("store", "sqlite")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bot_state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		snapshot   TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the snapshot row. A missing row or corrupt snapshot yields a
// fresh state.
func (s *SQLiteStore) Load(ctx context.Context) *BotState {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM bot_state WHERE id = 1`,
	).Scan(&snapshot)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("sqlite state unreadable, starting fresh", "error", err)
		}
		return NewBotState()
	}

	st := NewBotState()
	if err := json.Unmarshal([]byte(snapshot), st); err != nil {
		s.logger.Warn("sqlite state corrupt, starting fresh", "error", err)
		return NewBotState()
	}
	return st
}

// Save upserts the snapshot row.
func (s *SQLiteStore) Save(ctx context.Context, st *BotState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return &PersistenceError{Backend: "sqlite", Err: err}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bot_state (id, snapshot, updated_at)
		 VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &PersistenceError{Backend: "sqlite", Err: err}
	}
	return nil
}
