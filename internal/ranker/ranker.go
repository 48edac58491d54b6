// Package ranker produces a deterministic total order over candidates and
// implements the slot-reservation admission policy that biases a scarce
// reply budget toward high-value authors.
package ranker

import (
	"sort"
	"time"

	"github.com/dawnloop/gmbot/internal/platform"
)

// Bucket labels, best first. Mutuals come before followers because a
// mutual relationship predicts the highest reply-back rate; high-reach
// strangers still beat unknown small accounts.
const (
	BucketMutual    = 0
	BucketFollower  = 1
	BucketFollowing = 2
	BucketHighReach = 3
	BucketOther     = 4
)

var bucketLabels = [...]string{"mutual", "follower", "following", "high-reach", "other"}

// Score is the derived priority for one candidate.
type Score struct {
	Bucket        int
	Label         string
	FollowerCount int64
	IsFollower    bool
	IsFollowing   bool
	CreatedAt     time.Time

	// IsLowValue marks tiny unknown accounts; the admission policy may
	// strategically skip these to hold slots for better targets.
	IsLowValue bool
}

// Ranked pairs a candidate with its score.
type Ranked struct {
	Candidate platform.Candidate
	Score     Score
}

// Config holds the ranking thresholds. Both are deliberate tuning knobs
// rather than constants; see the repo design notes.
type Config struct {
	// MinFollowers is the high-reach bucket threshold.
	MinFollowers int64

	// LowValueCutoff marks non-connected authors below this follower
	// count as low-value.
	LowValueCutoff int64
}

// ScoreCandidate assigns the priority bucket for one candidate.
// First match wins: mutual, follower, following, high-reach, other.
func ScoreCandidate(c platform.Candidate, followers, following map[string]struct{}, cfg Config) Score {
	_, isFollower := followers[c.AuthorID]
	_, isFollowing := following[c.AuthorID]

	bucket := BucketOther
	switch {
	case isFollower && isFollowing:
		bucket = BucketMutual
	case isFollower:
		bucket = BucketFollower
	case isFollowing:
		bucket = BucketFollowing
	case c.FollowerCount >= cfg.MinFollowers:
		bucket = BucketHighReach
	}

	return Score{
		Bucket:        bucket,
		Label:         bucketLabels[bucket],
		FollowerCount: c.FollowerCount,
		IsFollower:    isFollower,
		IsFollowing:   isFollowing,
		CreatedAt:     c.CreatedAt,
		IsLowValue:    c.FollowerCount < cfg.LowValueCutoff && bucket > BucketHighReach,
	}
}

// Rank scores and sorts candidates into a strict total order:
// bucket ascending, follower count descending, recency descending, and
// finally ID descending so equal-everything candidates still order
// deterministically.
func Rank(candidates []platform.Candidate, followers, following map[string]struct{}, cfg Config) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, Ranked{
			Candidate: c,
			Score:     ScoreCandidate(c, followers, following, cfg),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score.Bucket != b.Score.Bucket {
			return a.Score.Bucket < b.Score.Bucket
		}
		if a.Score.FollowerCount != b.Score.FollowerCount {
			return a.Score.FollowerCount > b.Score.FollowerCount
		}
		if !a.Score.CreatedAt.Equal(b.Score.CreatedAt) {
			return a.Score.CreatedAt.After(b.Score.CreatedAt)
		}
		return a.Candidate.ID > b.Candidate.ID
	})

	return ranked
}

// ReserveForHighValue decides whether a low-value candidate should be
// strategically skipped: when the still-eligible high-value candidates
// could fill at least `share` of the remaining budget, the slot is held
// for them. Greedy and single-pass; skipped candidates are not revisited
// within a run.
func ReserveForHighValue(eligibleHighValue, remainingBudget int, share float64) bool {
	if remainingBudget <= 0 {
		return false
	}
	return float64(eligibleHighValue) >= share*float64(remainingBudget)
}
