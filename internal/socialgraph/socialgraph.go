// Package socialgraph maintains TTL-bounded follower/following ID sets in
// the bot's persistent state. Rebuilds are paginated, paced, and degrade
// gracefully: rate limits keep the partial result, permission refusals
// yield an empty set, and stale data remains usable — a graph problem never
// blocks the pipeline.
package socialgraph

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/state"
)

// Cache refreshes the graph caches inside BotState. It mutates the state
// aggregate it is given; persisting the mutation is the orchestrator's job.
type Cache struct {
	lister platform.GraphLister
	logger *slog.Logger

	// MaxPages bounds a rebuild's worst-case latency.
	MaxPages int

	// PageDelayMin/Max pace the paginated fetches.
	PageDelayMin time.Duration
	PageDelayMax time.Duration

	// Hooks for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	rng   *rand.Rand
}

// New creates a cache over the given lister with default paging bounds.
func New(lister platform.GraphLister, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		lister:       lister,
		logger:       logger.With("component", "socialgraph"),
		MaxPages:     10,
		PageDelayMin: time.Second,
		PageDelayMax: 2 * time.Second,
		now:          time.Now,
		sleep:        sleepCtx,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Followers returns the follower ID set, rebuilding the cache entry in st
// when it is older than ttl.
func (c *Cache) Followers(ctx context.Context, st *state.BotState, ttl time.Duration) map[string]struct{} {
	return c.refresh(ctx, &st.Followers, ttl, "followers", c.lister.FollowersPage)
}

// Following returns the following ID set, rebuilding the cache entry in st
// when it is older than ttl.
func (c *Cache) Following(ctx context.Context, st *state.BotState, ttl time.Duration) map[string]struct{} {
	return c.refresh(ctx, &st.Following, ttl, "following", c.lister.FollowingPage)
}

type pageFn func(ctx context.Context, cursor string) (*platform.IDPage, error)

func (c *Cache) refresh(ctx context.Context, cache *state.GraphCache, ttl time.Duration, kind string, page pageFn) map[string]struct{} {
	now := c.now()
	if cache.Fresh(ttl, now) {
		c.logger.Debug("using cached graph listing",
			"kind", kind,
			"size", len(cache.IDs),
			"age", now.Sub(cache.RefreshedAt).Round(time.Minute),
		)
		return cache.IDSet()
	}

	c.logger.Info("rebuilding graph cache", "kind", kind)

	var ids []string
	cursor := ""
	partial := false

	for pageCount := 0; pageCount < c.MaxPages; pageCount++ {
		result, err := page(ctx, cursor)
		if err != nil {
			var permErr *platform.PermissionError
			if errors.As(err, &permErr) {
				c.logger.Warn("graph listing requires elevated access, degrading to empty set",
					"kind", kind, "error", err)
				return map[string]struct{}{}
			}

			var rateErr *platform.RateLimitError
			if errors.As(err, &rateErr) {
				c.logger.Warn("rate limited mid-rebuild, keeping partial listing",
					"kind", kind, "pages", pageCount, "ids", len(ids))
				partial = true
				break
			}

			// Other failures: the stale cache is still usable.
			c.logger.Warn("graph rebuild failed, using stale cache",
				"kind", kind, "error", err)
			return cache.IDSet()
		}

		ids = append(ids, result.IDs...)
		c.logger.Debug("fetched graph page", "kind", kind, "page", pageCount+1, "ids", len(result.IDs))

		cursor = result.NextCursor
		if cursor == "" {
			break
		}

		// Pace between pages to respect upstream limits.
		if pageCount+1 < c.MaxPages {
			c.sleep(ctx, c.pageDelay())
		}
	}

	cache.RefreshedAt = now
	cache.IDs = ids
	c.logger.Info("graph cache rebuilt", "kind", kind, "size", len(ids), "partial", partial)

	return cache.IDSet()
}

func (c *Cache) pageDelay() time.Duration {
	if c.PageDelayMax <= c.PageDelayMin {
		return c.PageDelayMin
	}
	return c.PageDelayMin + time.Duration(c.rng.Int63n(int64(c.PageDelayMax-c.PageDelayMin)))
}
