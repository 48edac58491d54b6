package state

import (
	"context"
	"log/slog"
)

// Tiered layers an authoritative primary store over a best-effort backup.
// Scheduled runs use Redis as the primary with the local file as backup:
// the backup only matters when the primary comes up empty (first run after
// a key wipe, or local development against production state dumps).
type Tiered struct {
	primary Store
	backup  Store
	logger  *slog.Logger
}

// NewTiered wraps primary with a best-effort backup store.
func NewTiered(primary, backup Store, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{
		primary: primary,
		backup:  backup,
		logger:  logger.With("store", "tiered"),
	}
}

var _ Store = (*Tiered)(nil)

// Load prefers the primary snapshot and falls back to the backup only when
// the primary has nothing.
func (t *Tiered) Load(ctx context.Context) *BotState {
	s := t.primary.Load(ctx)
	if !s.Empty() {
		return s
	}

	b := t.backup.Load(ctx)
	if !b.Empty() {
		t.logger.Info("primary state empty, using backup snapshot")
		return b
	}
	return s
}

// Save writes to the primary; a primary failure is the caller's problem.
// The backup write is advisory and only logged.
func (t *Tiered) Save(ctx context.Context, s *BotState) error {
	if err := t.primary.Save(ctx, s); err != nil {
		return err
	}
	if err := t.backup.Save(ctx, s); err != nil {
		t.logger.Warn("backup state write failed", "error", err)
	}
	return nil
}
