package state

import (
	"context"
	"fmt"
)

// Store persists the bot's memory between runs.
//
// Load never fails: a missing or unreadable snapshot yields a fresh
// default state (the bot simply starts over; dedup history is the only
// loss and upstream tolerates the occasional duplicate). Save failures are
// surfaced as *PersistenceError — the caller decides whether that is fatal
// for the run.
type Store interface {
	Load(ctx context.Context) *BotState
	Save(ctx context.Context, s *BotState) error
}

// PersistenceError wraps a failed Save. State can no longer be trusted to
// advance safely, so the orchestrator aborts the run when it sees one.
type PersistenceError struct {
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist state (%s): %v", e.Backend, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
