// Package state holds the bot's persistent memory and the storage backends
// that durably record it. BotState is loaded once at the start of a run,
// mutated in place by the orchestrator, and saved as a whole — there are no
// partial writes to sub-fields.
package state

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dawnloop/gmbot/internal/platform"
)

// GraphCache is one cached social-graph listing (followers or following).
// Stale entries are still usable; staleness only makes them eligible for a
// rebuild.
type GraphCache struct {
	RefreshedAt time.Time `json:"refreshed_at"`
	IDs         []string  `json:"ids"`
}

// Fresh reports whether the cache entry is younger than ttl.
func (g *GraphCache) Fresh(ttl time.Duration, now time.Time) bool {
	if g.RefreshedAt.IsZero() {
		return false
	}
	return now.Sub(g.RefreshedAt) < ttl
}

// IDSet returns the cached IDs as a set.
func (g *GraphCache) IDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(g.IDs))
	for _, id := range g.IDs {
		set[id] = struct{}{}
	}
	return set
}

// Outcome is one posted reply and its later-measured engagement.
// It is created with StatusPosted and transitions exactly once to
// StatusScored when metrics are collected; it never transitions back.
type Outcome struct {
	SourcePostID string           `json:"source_post_id"`
	ReplyPostID  string           `json:"reply_post_id"`
	AuthorID     string           `json:"author_id"`
	TemplateID   string           `json:"template_id"`
	PostedAt     time.Time        `json:"posted_at"`
	Status       string           `json:"status"`
	Metrics      platform.Metrics `json:"metrics"`
	Reward       int64            `json:"reward"`
}

// Outcome status values.
const (
	StatusPosted = "posted"
	StatusScored = "scored"
)

// BotState is the persisted aggregate. RepliedPostIDs is a set in memory
// and an ordered sequence on disk; the conversion happens at the JSON
// boundary below.
type BotState struct {
	// Cursor is the last-seen feed position. Empty means no prior run.
	Cursor string

	// RepliedPostIDs is append-only: membership is checked before any
	// reply attempt and IDs are never removed.
	RepliedPostIDs map[string]struct{}

	// AuthorCooldown maps author ID to the time of the last reply to
	// that author.
	AuthorCooldown map[string]time.Time

	// Outcomes is the append-only reply ledger.
	Outcomes []Outcome

	Followers GraphCache
	Following GraphCache
}

// NewBotState returns a fresh default-initialized state.
func NewBotState() *BotState {
	return &BotState{
		RepliedPostIDs: make(map[string]struct{}),
		AuthorCooldown: make(map[string]time.Time),
	}
}

// normalize repairs nil aggregates after a partial decode so callers never
// have to nil-check the maps.
func (s *BotState) normalize() {
	if s.RepliedPostIDs == nil {
		s.RepliedPostIDs = make(map[string]struct{})
	}
	if s.AuthorCooldown == nil {
		s.AuthorCooldown = make(map[string]time.Time)
	}
}

// Empty reports whether the state carries no prior-run data. Used by the
// tiered store to decide whether a backup copy is worth consulting.
func (s *BotState) Empty() bool {
	return s.Cursor == "" &&
		len(s.RepliedPostIDs) == 0 &&
		len(s.AuthorCooldown) == 0 &&
		len(s.Outcomes) == 0 &&
		s.Followers.RefreshedAt.IsZero() &&
		s.Following.RefreshedAt.IsZero()
}

// HasReplied reports whether the bot already replied to the given post.
func (s *BotState) HasReplied(postID string) bool {
	_, ok := s.RepliedPostIDs[postID]
	return ok
}

// MarkReplied records a successful reply: post dedup plus the author
// cooldown stamp. Synthetic authors are not cooldown-tracked because their
// IDs do not survive across runs.
func (s *BotState) MarkReplied(c platform.Candidate, now time.Time) {
	s.RepliedPostIDs[c.ID] = struct{}{}
	if !c.AuthorSynthetic {
		s.AuthorCooldown[c.AuthorID] = now
	}
}

// AuthorOnCooldown reports whether the author was replied to within the
// cooldown window ending at now.
func (s *BotState) AuthorOnCooldown(authorID string, window time.Duration, now time.Time) bool {
	last, ok := s.AuthorCooldown[authorID]
	if !ok {
		return false
	}
	return now.Sub(last) < window
}

// botStateJSON is the on-disk layout. The replied-post set serializes as a
// sorted slice so snapshots are stable and diffable.
type botStateJSON struct {
	Cursor         string               `json:"cursor,omitempty"`
	RepliedPostIDs []string             `json:"replied_post_ids"`
	AuthorCooldown map[string]time.Time `json:"author_cooldown"`
	Outcomes       []Outcome            `json:"outcomes"`
	Followers      GraphCache           `json:"followers_cache"`
	Following      GraphCache           `json:"following_cache"`
}

// MarshalJSON implements json.Marshaler.
func (s *BotState) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s.RepliedPostIDs))
	for id := range s.RepliedPostIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return json.Marshal(botStateJSON{
		Cursor:         s.Cursor,
		RepliedPostIDs: ids,
		AuthorCooldown: s.AuthorCooldown,
		Outcomes:       s.Outcomes,
		Followers:      s.Followers,
		Following:      s.Following,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *BotState) UnmarshalJSON(data []byte) error {
	var raw botStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Cursor = raw.Cursor
	s.RepliedPostIDs = make(map[string]struct{}, len(raw.RepliedPostIDs))
	for _, id := range raw.RepliedPostIDs {
		s.RepliedPostIDs[id] = struct{}{}
	}
	s.AuthorCooldown = raw.AuthorCooldown
	s.Outcomes = raw.Outcomes
	s.Followers = raw.Followers
	s.Following = raw.Following
	s.normalize()
	return nil
}
