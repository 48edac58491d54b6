package agent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/dawnloop/gmbot/internal/generate"
	"github.com/dawnloop/gmbot/internal/persona"
	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/replyctx"
	"github.com/dawnloop/gmbot/internal/state"
)

var testTime = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) // a Monday morning

type memStore struct {
	st       *state.BotState
	saves    int
	failSave bool
}

func (m *memStore) Load(context.Context) *state.BotState {
	if m.st == nil {
		m.st = state.NewBotState()
	}
	return m.st
}

func (m *memStore) Save(_ context.Context, st *state.BotState) error {
	if m.failSave {
		return &state.PersistenceError{Backend: "mem", Err: errors.New("disk full")}
	}
	m.saves++
	m.st = st
	return nil
}

type fakeSearcher struct {
	result  *platform.SearchResult
	errs    []error // consumed one per call before result is returned
	cursors []string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, sinceID string, _ int) (*platform.SearchResult, error) {
	f.cursors = append(f.cursors, sinceID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.result == nil {
		return &platform.SearchResult{}, nil
	}
	return f.result, nil
}

type fakeReplier struct {
	failIDs map[string]bool
	posted  []string // source post IDs in reply order
}

func (f *fakeReplier) Reply(_ context.Context, postID, _ string) (string, error) {
	if f.failIDs[postID] {
		return "", &platform.HTTPError{Endpoint: "reply", Status: 500}
	}
	f.posted = append(f.posted, postID)
	return "reply-" + postID, nil
}

type fakeLiker struct {
	liked []string
	err   error
}

func (f *fakeLiker) Like(_ context.Context, postID string) error {
	if f.err != nil {
		return f.err
	}
	f.liked = append(f.liked, postID)
	return nil
}

type emptyLister struct{}

func (emptyLister) FollowersPage(context.Context, string) (*platform.IDPage, error) {
	return &platform.IDPage{}, nil
}

func (emptyLister) FollowingPage(context.Context, string) (*platform.IDPage, error) {
	return &platform.IDPage{}, nil
}

type fakeMetrics struct{}

func (fakeMetrics) MetricsFor(_ context.Context, ids []string) (map[string]platform.Metrics, error) {
	out := make(map[string]platform.Metrics, len(ids))
	for _, id := range ids {
		out[id] = platform.Metrics{Likes: 1}
	}
	return out, nil
}

type fakeGen struct {
	skipIDs map[string]bool
}

func (g fakeGen) Generate(_ context.Context, c platform.Candidate, _ replyctx.Context, _ persona.Persona) generate.Result {
	if g.skipIDs[c.ID] {
		return generate.Result{Skip: true, SkipReason: "model declined", TemplateID: "tpl:test"}
	}
	return generate.Result{Text: "gm right back!", TemplateID: "tpl:test"}
}

func testConfig() Config {
	return Config{
		Query:          "(gm OR gn)",
		ReplyBudget:    10,
		SearchCap:      15,
		MinFollowers:   500,
		LowValueCutoff: 50,
		HighValueShare: 0.7,
		Cooldown:       48 * time.Hour,
		GraphTTL:       24 * time.Hour,
		MaxReplyLen:    140,
		AutoLike:       true,
	}
}

func newTestAgent(t *testing.T, cfg Config, deps Deps) *Agent {
	t.Helper()
	if deps.Store == nil {
		deps.Store = &memStore{}
	}
	if deps.Replier == nil {
		deps.Replier = &fakeReplier{}
	}
	if deps.Liker == nil {
		deps.Liker = &fakeLiker{}
	}
	if deps.Graph == nil {
		deps.Graph = emptyLister{}
	}
	if deps.Metrics == nil {
		deps.Metrics = fakeMetrics{}
	}
	if deps.Generator == nil {
		deps.Generator = fakeGen{}
	}
	if deps.Persona == (persona.Persona{}) {
		p, err := persona.Get("friendly")
		if err != nil {
			t.Fatal(err)
		}
		deps.Persona = p
	}
	deps.Logger = slog.New(slog.NewTextHandler(testWriter{t}, nil))

	a := New(cfg, deps)
	a.now = func() time.Time { return testTime }
	a.sleep = func(context.Context, time.Duration) {}
	a.rng = rand.New(rand.NewSource(1))
	return a
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func cand(id, author string, followers int64, text string) platform.Candidate {
	return platform.Candidate{
		ID:            id,
		AuthorID:      author,
		Text:          text,
		CreatedAt:     testTime.Add(-10 * time.Minute),
		Language:      "en",
		FollowerCount: followers,
	}
}

func TestRunRepliesRecordsAndPersists(t *testing.T) {
	store := &memStore{}
	replier := &fakeReplier{}
	liker := &fakeLiker{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{
			cand("t1", "a1", 1000, "gm everyone"),
			cand("t2", "a2", 100, "gn world"),
		},
		NewestID: "t1",
	}}

	a := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: searcher, Replier: replier, Liker: liker})

	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Replied != 2 {
		t.Fatalf("replied: got %d, want 2", report.Replied)
	}
	if a.Phase() != PhaseDone {
		t.Errorf("phase: got %s, want done", a.Phase())
	}

	st := store.st
	if !st.HasReplied("t1") || !st.HasReplied("t2") {
		t.Error("replied posts not recorded in state")
	}
	if len(st.Outcomes) != 2 {
		t.Errorf("outcomes: got %d, want 2", len(st.Outcomes))
	}
	if st.Cursor != "t1" {
		t.Errorf("cursor: got %q, want t1", st.Cursor)
	}
	if len(liker.liked) != 2 {
		t.Errorf("likes: got %d, want 2", len(liker.liked))
	}
	// One save per reply plus the final cursor save.
	if store.saves != 3 {
		t.Errorf("saves: got %d, want 3", store.saves)
	}
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	store := &memStore{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{cand("t1", "a1", 1000, "gm!")},
	}}

	a := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: searcher})
	if _, err := a.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	replier := &fakeReplier{}
	b := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: searcher, Replier: replier})
	report, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replied != 0 {
		t.Errorf("second run replied %d times to an already-handled post", report.Replied)
	}
	if len(replier.posted) != 0 {
		t.Errorf("second run posted: %v", replier.posted)
	}
}

func TestAuthorCooldownLimitsToOneReply(t *testing.T) {
	replier := &fakeReplier{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{
			cand("t1", "chatty", 1000, "gm from me"),
			cand("t2", "chatty", 1000, "gm again"),
		},
	}}

	a := newTestAgent(t, testConfig(), Deps{Searcher: searcher, Replier: replier})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replied != 1 {
		t.Errorf("replied: got %d, want 1 (same author twice in one pass)", report.Replied)
	}
}

func TestSyntheticAuthorsExemptFromCooldown(t *testing.T) {
	replier := &fakeReplier{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{
			cand("t1", "", 1000, "gm one"),
			cand("t2", "", 1000, "gm two"),
		},
	}}

	a := newTestAgent(t, testConfig(), Deps{Searcher: searcher, Replier: replier})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Missing author IDs get distinct placeholders, so neither post blocks
	// the other on cooldown.
	if report.Replied != 2 {
		t.Errorf("replied: got %d, want 2", report.Replied)
	}
}

func TestLowValueSkippedWhileHighValueEligible(t *testing.T) {
	// Four high-value candidates survive the eligibility count (not replied,
	// no cooldown) but are rejected by the content filter, so the budget
	// never shrinks. With budget 2 the reservation 4 >= 0.7*2 holds for
	// every low-value candidate.
	cfg := testConfig()
	cfg.ReplyBudget = 2

	var cands []platform.Candidate
	for _, id := range []string{"h1", "h2", "h3", "h4"} {
		cands = append(cands, cand(id, "author-"+id, 2000, "gm, see https://spam.example"))
	}
	for _, id := range []string{"l1", "l2", "l3"} {
		cands = append(cands, cand(id, "author-"+id, 10, "gm friends"))
	}

	replier := &fakeReplier{}
	searcher := &fakeSearcher{result: &platform.SearchResult{Candidates: cands}}
	a := newTestAgent(t, cfg, Deps{Searcher: searcher, Replier: replier})

	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replied != 0 {
		t.Errorf("replied: got %d, want 0", report.Replied)
	}
	if report.SkippedLowValue != 3 {
		t.Errorf("skipped low value: got %d, want 3", report.SkippedLowValue)
	}
}

func TestLowValueAdmittedOnceHighValueExhausted(t *testing.T) {
	var cands []platform.Candidate
	for i, id := range []string{"h1", "h2", "h3", "h4"} {
		cands = append(cands, cand(id, "author-"+id, int64(5000-i*1000), "gm all"))
	}
	for _, id := range []string{"l1", "l2", "l3", "l4", "l5", "l6", "l7", "l8"} {
		cands = append(cands, cand(id, "author-"+id, 10, "gm friends"))
	}

	replier := &fakeReplier{}
	searcher := &fakeSearcher{result: &platform.SearchResult{Candidates: cands}}
	a := newTestAgent(t, testConfig(), Deps{Searcher: searcher, Replier: replier})

	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replied != 10 {
		t.Fatalf("replied: got %d, want 10 (full budget)", report.Replied)
	}
	// Ranking puts every high-value candidate ahead of the small accounts.
	for i, id := range []string{"h1", "h2", "h3", "h4"} {
		if replier.posted[i] != id {
			t.Errorf("reply %d: got %s, want %s", i, replier.posted[i], id)
		}
	}
	if report.SkippedLowValue != 0 {
		t.Errorf("skipped low value: got %d, want 0 (no high-value left to hold for)", report.SkippedLowValue)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Dry = true

	store := &memStore{}
	replier := &fakeReplier{}
	liker := &fakeLiker{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{
			cand("t1", "a1", 1000, "gm one"),
			cand("t2", "a2", 1000, "gm two"),
			cand("t3", "a3", 1000, "gm three"),
		},
		NewestID: "t1",
	}}

	a := newTestAgent(t, cfg, Deps{Store: store, Searcher: searcher, Replier: replier, Liker: liker})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.WouldReply != 3 {
		t.Errorf("would-reply: got %d, want 3", report.WouldReply)
	}
	if report.Replied != 0 {
		t.Errorf("replied: got %d, want 0", report.Replied)
	}
	if len(replier.posted) != 0 || len(liker.liked) != 0 {
		t.Error("dry run must not post or like")
	}
	if store.saves != 0 {
		t.Errorf("dry run must not persist, got %d saves", store.saves)
	}
	if store.st.HasReplied("t1") || len(store.st.Outcomes) != 0 || store.st.Cursor != "" {
		t.Error("dry run must not mutate dedup, outcomes, or cursor")
	}
}

func TestInvalidCursorRetriedOnce(t *testing.T) {
	store := &memStore{st: state.NewBotState()}
	store.st.Cursor = "stale-token"

	searcher := &fakeSearcher{
		errs: []error{&platform.BadRequestError{Endpoint: "search", InvalidCursor: true}},
		result: &platform.SearchResult{
			Candidates: []platform.Candidate{cand("t1", "a1", 1000, "gm")},
			NewestID:   "t1",
		},
	}

	a := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: searcher})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Replied != 1 {
		t.Errorf("replied: got %d, want 1", report.Replied)
	}
	if len(searcher.cursors) != 2 || searcher.cursors[0] != "stale-token" || searcher.cursors[1] != "" {
		t.Errorf("expected retry with cleared cursor, got calls %v", searcher.cursors)
	}
	if store.st.Cursor != "t1" {
		t.Errorf("cursor after run: got %q, want t1", store.st.Cursor)
	}
}

func TestSearchFailureIsFatal(t *testing.T) {
	searcher := &fakeSearcher{errs: []error{&platform.RateLimitError{Endpoint: "search"}}}
	a := newTestAgent(t, testConfig(), Deps{Searcher: searcher})

	if _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected fatal error on search failure")
	}
	if a.Phase() != PhaseFailed {
		t.Errorf("phase: got %s, want failed", a.Phase())
	}
}

func TestPersistFailureIsFatal(t *testing.T) {
	store := &memStore{failSave: true}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{cand("t1", "a1", 1000, "gm")},
	}}

	a := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: searcher})
	_, err := a.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error on persistence failure")
	}
	var perr *state.PersistenceError
	if !errors.As(err, &perr) {
		t.Errorf("expected PersistenceError in chain, got %v", err)
	}
}

func TestReplyFailureSkipsCandidate(t *testing.T) {
	store := &memStore{}
	replier := &fakeReplier{failIDs: map[string]bool{"t1": true}}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{
			cand("t1", "a1", 2000, "gm one"),
			cand("t2", "a2", 1000, "gm two"),
		},
	}}

	a := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: searcher, Replier: replier})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replied != 1 {
		t.Errorf("replied: got %d, want 1", report.Replied)
	}
	// A failed post must stay retryable on a future run.
	if store.st.HasReplied("t1") {
		t.Error("failed reply must not be marked as replied")
	}
	if !store.st.HasReplied("t2") {
		t.Error("successful reply missing from dedup set")
	}
}

func TestGeneratorSkipLeavesCandidateUntouched(t *testing.T) {
	store := &memStore{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{cand("t1", "a1", 1000, "gm")},
	}}

	a := newTestAgent(t, testConfig(), Deps{
		Store:     store,
		Searcher:  searcher,
		Generator: fakeGen{skipIDs: map[string]bool{"t1": true}},
	})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replied != 0 {
		t.Errorf("replied: got %d, want 0", report.Replied)
	}
	if store.st.HasReplied("t1") {
		t.Error("skipped candidate must not enter the dedup set")
	}
}

func TestBudgetBoundsReplies(t *testing.T) {
	cfg := testConfig()
	cfg.ReplyBudget = 2

	var cands []platform.Candidate
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		cands = append(cands, cand(id, "author-"+id, 1000, "gm"))
	}
	replier := &fakeReplier{}
	searcher := &fakeSearcher{result: &platform.SearchResult{Candidates: cands}}

	a := newTestAgent(t, cfg, Deps{Searcher: searcher, Replier: replier})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replied != 2 {
		t.Errorf("replied: got %d, want budget of 2", report.Replied)
	}
}

func TestLikeFailureIsSwallowed(t *testing.T) {
	store := &memStore{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{cand("t1", "a1", 1000, "gm")},
	}}

	a := newTestAgent(t, testConfig(), Deps{
		Store:    store,
		Searcher: searcher,
		Liker:    &fakeLiker{err: &platform.RateLimitError{Endpoint: "like"}},
	})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("like failure must not fail the run: %v", err)
	}
	if report.Replied != 1 {
		t.Errorf("replied: got %d, want 1", report.Replied)
	}
}

func TestNoLikeWhenAutoLikeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AutoLike = false

	liker := &fakeLiker{}
	searcher := &fakeSearcher{result: &platform.SearchResult{
		Candidates: []platform.Candidate{cand("t1", "a1", 1000, "gm")},
	}}

	a := newTestAgent(t, cfg, Deps{Searcher: searcher, Liker: liker})
	if _, err := a.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(liker.liked) != 0 {
		t.Errorf("expected no likes, got %v", liker.liked)
	}
}

func TestEmptySearchStillAdvancesCursor(t *testing.T) {
	store := &memStore{}
	searcher := &fakeSearcher{result: &platform.SearchResult{NewestID: "newest"}}

	a := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: searcher})
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Fetched != 0 || report.Replied != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if store.st.Cursor != "newest" {
		t.Errorf("cursor: got %q, want newest", store.st.Cursor)
	}
}

func TestScorePersistsUpdates(t *testing.T) {
	store := &memStore{st: state.NewBotState()}
	store.st.Outcomes = []state.Outcome{
		{ReplyPostID: "r1", Status: state.StatusPosted, PostedAt: testTime.Add(-2 * time.Hour)},
	}

	a := newTestAgent(t, testConfig(), Deps{Store: store, Searcher: &fakeSearcher{}})
	updated, err := a.Score(context.Background(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 1 {
		t.Fatalf("updated: got %d, want 1", updated)
	}
	if store.saves != 1 {
		t.Errorf("saves: got %d, want 1", store.saves)
	}
	if store.st.Outcomes[0].Status != state.StatusScored {
		t.Error("outcome not flipped to scored")
	}
}
