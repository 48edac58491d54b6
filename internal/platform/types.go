// Package platform defines the contracts between the decision pipeline and
// the social platform. The pipeline only ever sees these types and
// interfaces; the real HTTP adapter lives in platform/twitter and test
// fakes implement the same interfaces.
package platform

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Candidate is one fetched post under consideration for a reply. It is
// ephemeral: it exists only for the duration of one engagement pass.
type Candidate struct {
	ID        string
	AuthorID  string
	Text      string
	CreatedAt time.Time

	// Language is the platform-declared locale tag, if any.
	Language string

	// FollowerCount is the author's follower count at fetch time, as
	// hydrated from the search response. Zero when the platform did not
	// return author metrics.
	FollowerCount int64

	// AuthorSynthetic marks candidates whose author ID was missing from
	// the search response and had to be synthesized locally. Such authors
	// cannot be cooldown-tracked and are treated as degraded data.
	AuthorSynthetic bool
}

// EnsureAuthorID fills a missing author ID with a synthesized placeholder
// and marks the candidate as degraded. Upstream search responses
// occasionally omit the author expansion; rather than dropping the row we
// keep it eligible for reply but exempt from per-author bookkeeping.
func (c *Candidate) EnsureAuthorID() {
	if strings.TrimSpace(c.AuthorID) != "" {
		return
	}
	c.AuthorID = "synthetic:" + uuid.NewString()
	c.AuthorSynthetic = true
}

// Metrics are the public engagement counters for one post.
type Metrics struct {
	Likes   int64 `json:"likes"`
	Replies int64 `json:"replies"`
	Reposts int64 `json:"reposts"`
	Quotes  int64 `json:"quotes"`
}

// SearchResult is one page of candidates plus the cursor for the next fetch.
type SearchResult struct {
	Candidates []Candidate

	// NewestID is the position token to persist so the next run does not
	// refetch these candidates. Empty when the platform returned none.
	NewestID string
}

// IDPage is one page of user IDs from a paginated graph listing.
type IDPage struct {
	IDs        []string
	NextCursor string
}
