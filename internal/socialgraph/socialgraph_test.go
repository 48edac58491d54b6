package socialgraph

import (
	"context"
	"testing"
	"time"

	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/state"
)

// fakeLister scripts per-page responses for one listing kind.
type fakeLister struct {
	pages     []pageResult
	callCount int
}

type pageResult struct {
	page *platform.IDPage
	err  error
}

func (f *fakeLister) FollowersPage(_ context.Context, _ string) (*platform.IDPage, error) {
	return f.next()
}

func (f *fakeLister) FollowingPage(_ context.Context, _ string) (*platform.IDPage, error) {
	return f.next()
}

func (f *fakeLister) next() (*platform.IDPage, error) {
	if f.callCount >= len(f.pages) {
		return &platform.IDPage{}, nil
	}
	r := f.pages[f.callCount]
	f.callCount++
	return r.page, r.err
}

func newTestCache(l platform.GraphLister) *Cache {
	c := New(l, nil)
	c.sleep = func(context.Context, time.Duration) {} // no pacing in tests
	return c
}

func TestFreshCacheIsNotRebuilt(t *testing.T) {
	lister := &fakeLister{}
	c := newTestCache(lister)

	st := state.NewBotState()
	st.Followers = state.GraphCache{
		RefreshedAt: time.Now().Add(-1 * time.Hour),
		IDs:         []string{"u1", "u2"},
	}

	got := c.Followers(context.Background(), st, 24*time.Hour)
	if len(got) != 2 {
		t.Errorf("expected cached set of 2, got %d", len(got))
	}
	if lister.callCount != 0 {
		t.Errorf("fresh cache must not hit the lister, got %d calls", lister.callCount)
	}
}

func TestStaleCacheRebuilds(t *testing.T) {
	lister := &fakeLister{pages: []pageResult{
		{page: &platform.IDPage{IDs: []string{"a", "b"}, NextCursor: "p2"}},
		{page: &platform.IDPage{IDs: []string{"c"}}},
	}}
	c := newTestCache(lister)

	st := state.NewBotState()
	st.Followers = state.GraphCache{
		RefreshedAt: time.Now().Add(-25 * time.Hour),
		IDs:         []string{"old"},
	}

	got := c.Followers(context.Background(), st, 24*time.Hour)
	if len(got) != 3 {
		t.Errorf("expected rebuilt set of 3, got %d", len(got))
	}
	if _, ok := got["old"]; ok {
		t.Error("rebuild must replace, not merge, the old listing")
	}
	if len(st.Followers.IDs) != 3 {
		t.Errorf("state cache entry not overwritten: %v", st.Followers.IDs)
	}
	if st.Followers.RefreshedAt.IsZero() {
		t.Error("refreshed timestamp not stamped")
	}
}

func TestRateLimitKeepsPartial(t *testing.T) {
	lister := &fakeLister{pages: []pageResult{
		{page: &platform.IDPage{IDs: []string{"a", "b"}, NextCursor: "p2"}},
		{err: &platform.RateLimitError{Endpoint: "followers"}},
	}}
	c := newTestCache(lister)

	st := state.NewBotState()
	got := c.Followers(context.Background(), st, 24*time.Hour)

	if len(got) != 2 {
		t.Errorf("expected partial set of 2, got %d", len(got))
	}
	if len(st.Followers.IDs) != 2 {
		t.Errorf("partial result must be written to state: %v", st.Followers.IDs)
	}
}

func TestPermissionErrorDegradesToEmpty(t *testing.T) {
	lister := &fakeLister{pages: []pageResult{
		{err: &platform.PermissionError{Endpoint: "followers"}},
	}}
	c := newTestCache(lister)

	st := state.NewBotState()
	st.Followers = state.GraphCache{
		RefreshedAt: time.Now().Add(-48 * time.Hour),
		IDs:         []string{"stale"},
	}

	got := c.Followers(context.Background(), st, 24*time.Hour)
	if len(got) != 0 {
		t.Errorf("expected empty set on permission error, got %d", len(got))
	}
	// The stale entry stays untouched for a future retry.
	if len(st.Followers.IDs) != 1 {
		t.Errorf("permission error must not overwrite the cache: %v", st.Followers.IDs)
	}
}

func TestOtherErrorFallsBackToStale(t *testing.T) {
	lister := &fakeLister{pages: []pageResult{
		{err: &platform.HTTPError{Endpoint: "followers", Status: 500}},
	}}
	c := newTestCache(lister)

	st := state.NewBotState()
	st.Following = state.GraphCache{
		RefreshedAt: time.Now().Add(-48 * time.Hour),
		IDs:         []string{"stale1", "stale2"},
	}

	got := c.Following(context.Background(), st, 24*time.Hour)
	if len(got) != 2 {
		t.Errorf("expected stale set of 2 on transient failure, got %d", len(got))
	}
}

func TestMaxPagesBoundsRebuild(t *testing.T) {
	// Lister always returns another page; the rebuild must stop at MaxPages.
	pages := make([]pageResult, 20)
	for i := range pages {
		pages[i] = pageResult{page: &platform.IDPage{IDs: []string{"x"}, NextCursor: "more"}}
	}
	lister := &fakeLister{pages: pages}
	c := newTestCache(lister)
	c.MaxPages = 3

	st := state.NewBotState()
	got := c.Followers(context.Background(), st, 24*time.Hour)

	if lister.callCount != 3 {
		t.Errorf("expected exactly 3 page fetches, got %d", lister.callCount)
	}
	if len(st.Followers.IDs) != 3 {
		t.Errorf("expected 3 collected ids, got %d", len(st.Followers.IDs))
	}
	_ = got
}
