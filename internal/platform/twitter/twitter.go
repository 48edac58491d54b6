// Package twitter is the HTTP adapter for the Twitter API v2. It
// implements every platform interface the pipeline consumes: recent
// search, reply creation, likes, graph listings, and batched metrics
// lookup. Requests are OAuth 1.0a user-context signed; non-2xx responses
// are mapped to the typed errors in the platform package.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/dawnloop/gmbot/internal/httpkit"
	"github.com/dawnloop/gmbot/internal/platform"
)

const defaultBaseURL = "https://api.twitter.com"

// Search max_results bounds imposed by the recent search endpoint.
const (
	searchMinResults = 10
	searchMaxResults = 100
)

// graphPageSize is the max_results for followers/following listings.
const graphPageSize = 1000

// Credentials are the four OAuth 1.0a user-context secrets.
type Credentials struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// Client talks to the Twitter API v2.
type Client struct {
	httpc   *http.Client
	baseURL string
	logger  *slog.Logger

	mu     sync.Mutex
	selfID string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the signed HTTP client entirely. Used in tests
// to skip OAuth signing.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a signed API client. The OAuth1 signer becomes the base
// roundtripper under the shared httpkit stack, so every request carries
// both the signature and the standard User-Agent, and transient
// connection errors are retried.
func New(creds Credentials, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "twitter")

	inner := &http.Client{Transport: httpkit.NewTransport()}
	octx := context.WithValue(oauth1.NoContext, oauth1.HTTPClient, inner)
	signing := oauth1.NewConfig(creds.APIKey, creds.APISecret).
		Client(octx, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))

	c := &Client{
		httpc: httpkit.NewClient(
			httpkit.WithBase(signing.Transport),
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		baseURL: defaultBaseURL,
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search implements platform.Searcher via GET /2/tweets/search/recent.
// The author expansion hydrates follower counts in the same call.
func (c *Client) Search(ctx context.Context, query, sinceID string, resultCap int) (*platform.SearchResult, error) {
	maxResults := resultCap
	if maxResults < searchMinResults {
		maxResults = searchMinResults
	}
	if maxResults > searchMaxResults {
		maxResults = searchMaxResults
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("tweet.fields", "created_at,lang,author_id")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "public_metrics")
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}

	var resp searchResponse
	if err := c.get(ctx, "/2/tweets/search/recent", q, &resp); err != nil {
		return nil, err
	}

	followerCounts := make(map[string]int64, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		followerCounts[u.ID] = u.PublicMetrics.FollowersCount
	}

	result := &platform.SearchResult{NewestID: resp.Meta.NewestID}
	for _, tw := range resp.Data {
		created, _ := time.Parse(time.RFC3339, tw.CreatedAt)
		result.Candidates = append(result.Candidates, platform.Candidate{
			ID:            tw.ID,
			AuthorID:      tw.AuthorID,
			Text:          tw.Text,
			CreatedAt:     created,
			Language:      tw.Lang,
			FollowerCount: followerCounts[tw.AuthorID],
		})
	}

	c.logger.Debug("search complete",
		"results", len(result.Candidates),
		"newest_id", result.NewestID,
		"since_id", sinceID,
	)
	return result, nil
}

// Reply implements platform.Replier via POST /2/tweets.
func (c *Client) Reply(ctx context.Context, postID, text string) (string, error) {
	body := createTweetRequest{Text: text}
	body.Reply.InReplyToTweetID = postID

	var resp createTweetResponse
	if err := c.post(ctx, "/2/tweets", body, &resp); err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// Like implements platform.Liker via POST /2/users/:id/likes.
func (c *Client) Like(ctx context.Context, postID string) error {
	self, err := c.self(ctx)
	if err != nil {
		return err
	}
	return c.post(ctx, "/2/users/"+self+"/likes", likeRequest{TweetID: postID}, nil)
}

// FollowersPage implements one page of platform.GraphLister.
func (c *Client) FollowersPage(ctx context.Context, cursor string) (*platform.IDPage, error) {
	return c.graphPage(ctx, "followers", cursor)
}

// FollowingPage implements one page of platform.GraphLister.
func (c *Client) FollowingPage(ctx context.Context, cursor string) (*platform.IDPage, error) {
	return c.graphPage(ctx, "following", cursor)
}

func (c *Client) graphPage(ctx context.Context, kind, cursor string) (*platform.IDPage, error) {
	self, err := c.self(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(graphPageSize))
	if cursor != "" {
		q.Set("pagination_token", cursor)
	}

	var resp userListResponse
	if err := c.get(ctx, "/2/users/"+self+"/"+kind, q, &resp); err != nil {
		return nil, err
	}

	page := &platform.IDPage{NextCursor: resp.Meta.NextToken}
	for _, u := range resp.Data {
		page.IDs = append(page.IDs, u.ID)
	}
	return page, nil
}

// MetricsFor implements platform.MetricsFetcher via the batched
// GET /2/tweets lookup. Deleted or protected posts come back in the
// response's errors array and are simply absent from the result.
func (c *Client) MetricsFor(ctx context.Context, postIDs []string) (map[string]platform.Metrics, error) {
	if len(postIDs) == 0 {
		return map[string]platform.Metrics{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(postIDs, ","))
	q.Set("tweet.fields", "public_metrics")

	var resp tweetsLookupResponse
	if err := c.get(ctx, "/2/tweets", q, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]platform.Metrics, len(resp.Data))
	for _, tw := range resp.Data {
		out[tw.ID] = platform.Metrics{
			Likes:   tw.PublicMetrics.LikeCount,
			Replies: tw.PublicMetrics.ReplyCount,
			Reposts: tw.PublicMetrics.RetweetCount,
			Quotes:  tw.PublicMetrics.QuoteCount,
		}
	}
	return out, nil
}

// self returns the authenticated user's ID, fetching it once via
// GET /2/users/me and caching it for the client's lifetime.
func (c *Client) self(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selfID != "" {
		return c.selfID, nil
	}

	var resp userResponse
	if err := c.get(ctx, "/2/users/me", nil, &resp); err != nil {
		return "", fmt.Errorf("resolve authenticated user: %w", err)
	}
	if resp.Data.ID == "" {
		return "", &platform.HTTPError{Endpoint: "/2/users/me", Status: http.StatusOK, Body: "response missing user id"}
	}

	c.selfID = resp.Data.ID
	c.logger.Debug("resolved authenticated user", "user_id", c.selfID)
	return c.selfID, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mapStatusError(endpoint, resp)
	}

	if out == nil {
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

// mapStatusError converts a non-2xx response into the platform error
// taxonomy. The body is captured for 400s because the invalid-cursor
// detection depends on the error detail naming the offending parameter.
func mapStatusError(endpoint string, resp *http.Response) error {
	body := httpkit.ReadErrorBody(resp.Body, 2048)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &platform.RateLimitError{Endpoint: endpoint}
	case http.StatusForbidden:
		return &platform.PermissionError{Endpoint: endpoint}
	case http.StatusBadRequest:
		return &platform.BadRequestError{
			Endpoint:      endpoint,
			Detail:        body,
			InvalidCursor: isCursorComplaint(body),
		}
	default:
		return &platform.HTTPError{Endpoint: endpoint, Status: resp.StatusCode, Body: body}
	}
}

// isCursorComplaint reports whether a 400 detail blames the position
// parameter rather than the query itself.
func isCursorComplaint(detail string) bool {
	d := strings.ToLower(detail)
	return strings.Contains(d, "since_id") || strings.Contains(d, "pagination_token")
}

// Wire types. Only the fields the pipeline consumes are declared.

type searchResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		AuthorID  string `json:"author_id"`
		CreatedAt string `json:"created_at"`
		Lang      string `json:"lang"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			PublicMetrics struct {
				FollowersCount int64 `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID    string `json:"newest_id"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

type createTweetRequest struct {
	Text  string `json:"text"`
	Reply struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply"`
}

type createTweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type likeRequest struct {
	TweetID string `json:"tweet_id"`
}

type userResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

type userListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

type tweetsLookupResponse struct {
	Data []struct {
		ID            string `json:"id"`
		PublicMetrics struct {
			RetweetCount int64 `json:"retweet_count"`
			ReplyCount   int64 `json:"reply_count"`
			LikeCount    int64 `json:"like_count"`
			QuoteCount   int64 `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}
