package platform

import "context"

// Searcher fetches candidate posts matching a query. A non-empty sinceID
// restricts results to posts newer than that position. Implementations must
// return typed errors from this package so the caller can distinguish rate
// limiting, permission problems, and invalid-cursor conditions.
type Searcher interface {
	Search(ctx context.Context, query, sinceID string, cap int) (*SearchResult, error)
}

// Replier posts a reply to a target post and returns the new post's ID.
type Replier interface {
	Reply(ctx context.Context, postID, text string) (replyID string, err error)
}

// Liker registers approval of a post. Failures are advisory; the caller
// logs and moves on.
type Liker interface {
	Like(ctx context.Context, postID string) error
}

// GraphLister pages through the authenticated user's social graph.
// An empty cursor requests the first page.
type GraphLister interface {
	FollowersPage(ctx context.Context, cursor string) (*IDPage, error)
	FollowingPage(ctx context.Context, cursor string) (*IDPage, error)
}

// MetricsFetcher looks up current engagement counters for a batch of post
// IDs. Unknown IDs are simply absent from the result map.
type MetricsFetcher interface {
	MetricsFor(ctx context.Context, postIDs []string) (map[string]Metrics, error)
}
