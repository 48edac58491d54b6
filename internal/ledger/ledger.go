// Package ledger is the outcome bookkeeping layer: every posted reply is
// recorded, later enriched with engagement metrics, and scored so reply
// strategies can be compared offline.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/state"
)

// Reward scores one outcome's metrics. Replies are weighted double:
// a conversation is worth more than passive approval.
func Reward(m platform.Metrics) int64 {
	return m.Likes + 2*m.Replies
}

// Ledger appends outcomes to BotState and collects engagement scores for
// them once they have had time to accumulate.
type Ledger struct {
	fetcher platform.MetricsFetcher
	logger  *slog.Logger

	// BatchSize bounds one metrics lookup; the upstream batch endpoint
	// caps at 100 IDs.
	BatchSize int

	// BatchDelayMin/Max pace between metric batches.
	BatchDelayMin time.Duration
	BatchDelayMax time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	rng   *rand.Rand
}

// New creates a ledger reading metrics from the given fetcher.
func New(fetcher platform.MetricsFetcher, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		fetcher:       fetcher,
		logger:        logger.With("component", "ledger"),
		BatchSize:     100,
		BatchDelayMin: time.Second,
		BatchDelayMax: 2 * time.Second,
		now:           time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Record appends a freshly posted reply to the outcome log.
func (l *Ledger) Record(st *state.BotState, sourcePostID, replyPostID, authorID, templateID string) {
	st.Outcomes = append(st.Outcomes, state.Outcome{
		SourcePostID: sourcePostID,
		ReplyPostID:  replyPostID,
		AuthorID:     authorID,
		TemplateID:   templateID,
		PostedAt:     l.now().UTC(),
		Status:       state.StatusPosted,
	})
	l.logger.Debug("outcome recorded",
		"template", templateID,
		"reply_id", replyPostID,
		"total_outcomes", len(st.Outcomes),
	)
}

// CollectScores fetches engagement metrics for all posted outcomes older
// than minAge, fills in their metrics and reward, and flips them to
// scored. Already-scored outcomes are excluded, so re-running collection
// is idempotent. Returns the number of outcomes updated.
func (l *Ledger) CollectScores(ctx context.Context, st *state.BotState, minAge time.Duration) (int, error) {
	cutoff := l.now().Add(-minAge)

	var due []*state.Outcome
	for i := range st.Outcomes {
		o := &st.Outcomes[i]
		if o.Status == state.StatusPosted && o.PostedAt.Before(cutoff) {
			due = append(due, o)
		}
	}

	if len(due) == 0 {
		l.logger.Info("no outcomes ready for scoring")
		return 0, nil
	}
	l.logger.Info("scoring outcomes", "count", len(due), "min_age", minAge)

	metrics := make(map[string]platform.Metrics, len(due))
	for start := 0; start < len(due); start += l.BatchSize {
		end := min(start+l.BatchSize, len(due))

		ids := make([]string, 0, end-start)
		for _, o := range due[start:end] {
			ids = append(ids, o.ReplyPostID)
		}

		batch, err := l.fetcher.MetricsFor(ctx, ids)
		if err != nil {
			return 0, fmt.Errorf("fetch metrics batch: %w", err)
		}
		for id, m := range batch {
			metrics[id] = m
		}

		if end < len(due) {
			l.sleep(ctx, l.batchDelay())
		}
	}

	updated := 0
	for _, o := range due {
		m, ok := metrics[o.ReplyPostID]
		if !ok {
			// Deleted reply or still-unindexed post; try again next pass.
			continue
		}
		o.Metrics = m
		o.Reward = Reward(m)
		o.Status = state.StatusScored
		updated++
	}

	l.logger.Info("outcomes scored", "updated", updated, "missing", len(due)-updated)
	return updated, nil
}

func (l *Ledger) batchDelay() time.Duration {
	if l.BatchDelayMax <= l.BatchDelayMin {
		return l.BatchDelayMin
	}
	return l.BatchDelayMin + time.Duration(l.rng.Int63n(int64(l.BatchDelayMax-l.BatchDelayMin)))
}

// TemplateStats aggregates scored outcomes for one generation strategy.
type TemplateStats struct {
	TemplateID  string
	Scored      int
	Likes       int64
	Replies     int64
	Reposts     int64
	Quotes      int64
	TotalReward int64
}

// Summarize aggregates all scored outcomes per template ID, sorted by
// total reward descending. Feeds the report subcommand.
func Summarize(st *state.BotState) []TemplateStats {
	byTemplate := make(map[string]*TemplateStats)
	for _, o := range st.Outcomes {
		if o.Status != state.StatusScored {
			continue
		}
		s, ok := byTemplate[o.TemplateID]
		if !ok {
			s = &TemplateStats{TemplateID: o.TemplateID}
			byTemplate[o.TemplateID] = s
		}
		s.Scored++
		s.Likes += o.Metrics.Likes
		s.Replies += o.Metrics.Replies
		s.Reposts += o.Metrics.Reposts
		s.Quotes += o.Metrics.Quotes
		s.TotalReward += o.Reward
	}

	out := make([]TemplateStats, 0, len(byTemplate))
	for _, s := range byTemplate {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalReward != out[j].TotalReward {
			return out[i].TotalReward > out[j].TotalReward
		}
		return out[i].TemplateID < out[j].TemplateID
	})
	return out
}
