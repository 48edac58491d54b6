package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dawnloop/gmbot/internal/platform"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Credentials{
		APIKey:       "k",
		APISecret:    "s",
		AccessToken:  "at",
		AccessSecret: "as",
	}, nil, WithBaseURL(srv.URL))
}

func TestSearchHydratesCandidates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets/search/recent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("since_id") != "100" {
			t.Errorf("since_id: got %q, want 100", q.Get("since_id"))
		}
		if q.Get("expansions") != "author_id" {
			t.Errorf("expansions: got %q", q.Get("expansions"))
		}
		if q.Get("max_results") != "15" {
			t.Errorf("max_results: got %q, want 15", q.Get("max_results"))
		}
		if r.Header.Get("Authorization") == "" {
			t.Error("request not signed")
		}

		w.Write([]byte(`{
			"data": [
				{"id": "1", "text": "gm", "author_id": "a1", "created_at": "2025-06-01T08:00:00Z", "lang": "en"},
				{"id": "2", "text": "gn", "author_id": "a2", "created_at": "2025-06-01T22:00:00Z", "lang": "es"}
			],
			"includes": {"users": [
				{"id": "a1", "public_metrics": {"followers_count": 1200}},
				{"id": "a2", "public_metrics": {"followers_count": 30}}
			]},
			"meta": {"newest_id": "2", "result_count": 2}
		}`))
	}))

	result, err := c.Search(context.Background(), "(gm OR gn)", "100", 15)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.NewestID != "2" {
		t.Errorf("newest id: got %q, want 2", result.NewestID)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("candidates: got %d, want 2", len(result.Candidates))
	}

	first := result.Candidates[0]
	if first.FollowerCount != 1200 {
		t.Errorf("follower count not hydrated from includes: got %d", first.FollowerCount)
	}
	if first.Language != "en" || first.AuthorID != "a1" {
		t.Errorf("candidate fields wrong: %+v", first)
	}
	if first.CreatedAt.IsZero() {
		t.Error("created_at not parsed")
	}
}

func TestSearchClampsMaxResults(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("max_results")
		w.Write([]byte(`{"meta": {"result_count": 0}}`))
	}))

	if _, err := c.Search(context.Background(), "gm", "", 3); err != nil {
		t.Fatal(err)
	}
	// The endpoint rejects anything under 10.
	if got != "10" {
		t.Errorf("max_results: got %q, want clamped 10", got)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "429 maps to rate limit",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var e *platform.RateLimitError
				if !errors.As(err, &e) {
					t.Errorf("want RateLimitError, got %v", err)
				}
			},
		},
		{
			name:   "403 maps to permission",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var e *platform.PermissionError
				if !errors.As(err, &e) {
					t.Errorf("want PermissionError, got %v", err)
				}
			},
		},
		{
			name:   "400 naming since_id marks invalid cursor",
			status: http.StatusBadRequest,
			body:   `{"errors":[{"message":"Invalid 'since_id' parameter"}]}`,
			check: func(t *testing.T, err error) {
				var e *platform.BadRequestError
				if !errors.As(err, &e) {
					t.Fatalf("want BadRequestError, got %v", err)
				}
				if !e.InvalidCursor {
					t.Error("since_id complaint must set InvalidCursor")
				}
			},
		},
		{
			name:   "plain 400 is not a cursor problem",
			status: http.StatusBadRequest,
			body:   `{"errors":[{"message":"Invalid query"}]}`,
			check: func(t *testing.T, err error) {
				var e *platform.BadRequestError
				if !errors.As(err, &e) {
					t.Fatalf("want BadRequestError, got %v", err)
				}
				if e.InvalidCursor {
					t.Error("query complaint must not set InvalidCursor")
				}
			},
		},
		{
			name:   "500 maps to HTTPError",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var e *platform.HTTPError
				if !errors.As(err, &e) {
					t.Fatalf("want HTTPError, got %v", err)
				}
				if e.Status != 500 {
					t.Errorf("status: got %d", e.Status)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			_, err := c.Search(context.Background(), "gm", "", 15)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestReply(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {"id": "999"}}`))
	}))

	id, err := c.Reply(context.Background(), "123", "gm right back!")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if id != "999" {
		t.Errorf("reply id: got %q, want 999", id)
	}
}

func TestLikeResolvesSelfOnce(t *testing.T) {
	meCalls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/users/me":
			meCalls++
			w.Write([]byte(`{"data": {"id": "self-1", "username": "gmbot"}}`))
		case "/2/users/self-1/likes":
			w.Write([]byte(`{"data": {"liked": true}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	if err := c.Like(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Like(context.Background(), "t2"); err != nil {
		t.Fatal(err)
	}
	if meCalls != 1 {
		t.Errorf("users/me calls: got %d, want 1 (cached)", meCalls)
	}
}

func TestFollowersPagePagination(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/users/me":
			w.Write([]byte(`{"data": {"id": "self-1"}}`))
		case "/2/users/self-1/followers":
			if got := r.URL.Query().Get("pagination_token"); got != "p2" {
				t.Errorf("pagination_token: got %q, want p2", got)
			}
			w.Write([]byte(`{"data": [{"id": "u1"}, {"id": "u2"}], "meta": {"next_token": "p3"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	page, err := c.FollowersPage(context.Background(), "p2")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.IDs) != 2 || page.NextCursor != "p3" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestMetricsFor(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "1,2" {
			t.Errorf("ids: got %q, want 1,2", got)
		}
		// The second ID was deleted upstream and only appears under errors.
		w.Write([]byte(`{
			"data": [{"id": "1", "public_metrics": {"like_count": 5, "reply_count": 3, "retweet_count": 1, "quote_count": 0}}],
			"errors": [{"resource_id": "2", "title": "Not Found Error"}]
		}`))
	}))

	got, err := c.MetricsFor(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("metrics entries: got %d, want 1", len(got))
	}
	m := got["1"]
	if m.Likes != 5 || m.Replies != 3 || m.Reposts != 1 {
		t.Errorf("metrics wrong: %+v", m)
	}
}

func TestMetricsForEmptyBatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty batch must not hit the network")
	}))

	got, err := c.MetricsFor(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}
