// Package agent drives one engagement pass: fetch candidates, filter,
// rank, admit under the reply budget, generate, post, record, persist,
// pace. One candidate is processed fully before the next begins; the
// per-author cooldown and per-post dedup checks need read-then-write
// consistency against BotState and nothing else enforces it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/dawnloop/gmbot/internal/filter"
	"github.com/dawnloop/gmbot/internal/generate"
	"github.com/dawnloop/gmbot/internal/ledger"
	"github.com/dawnloop/gmbot/internal/persona"
	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/ranker"
	"github.com/dawnloop/gmbot/internal/replyctx"
	"github.com/dawnloop/gmbot/internal/socialgraph"
	"github.com/dawnloop/gmbot/internal/state"
)

// Phase names the orchestrator's position in its run lifecycle. A run
// moves strictly forward; Failed is terminal and only reachable from
// Fetching — every later per-candidate failure is isolated and logged.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseFiltering Phase = "filtering"
	PhaseRanking   Phase = "ranking"
	PhaseReplying  Phase = "replying"
	PhasePersist   Phase = "persisting"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Config holds the per-run knobs. Zero values are not defaulted here;
// cmd/gmbot translates the config file into a fully populated Config.
type Config struct {
	Query          string
	ReplyBudget    int
	SearchCap      int
	MinFollowers   int64
	LowValueCutoff int64
	HighValueShare float64
	Cooldown       time.Duration
	GraphTTL       time.Duration
	MaxReplyLen    int

	// Dry performs every decision step but replaces post/like/persist
	// with log lines.
	Dry bool

	// AutoLike likes the source post after a successful reply.
	AutoLike bool

	// RefreshFollowers/RefreshFollowing bypass the graph cache TTL.
	RefreshFollowers bool
	RefreshFollowing bool

	// Overrides force parts of the reply context from CLI flags.
	Overrides replyctx.Overrides

	// Pacing delays.
	ReplyDelayMin time.Duration
	ReplyDelayMax time.Duration
	LikeDelayMin  time.Duration
	LikeDelayMax  time.Duration
	PageDelayMin  time.Duration
	PageDelayMax  time.Duration

	// GraphMaxPages bounds a graph cache rebuild; zero keeps the default.
	GraphMaxPages int

	// MetricsBatch bounds one metrics lookup; zero keeps the default.
	MetricsBatch int
}

// Agent owns BotState for the duration of one run. Collaborators are
// injected so tests substitute fakes.
type Agent struct {
	cfg Config

	store    state.Store
	searcher platform.Searcher
	replier  platform.Replier
	liker    platform.Liker
	graph    *socialgraph.Cache
	ledger   *ledger.Ledger
	gen      generate.Generator
	filter   *filter.Filter
	persona  persona.Persona
	logger   *slog.Logger

	phase Phase

	// Hooks for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	rng   *rand.Rand
}

// Deps bundles the injected collaborators.
type Deps struct {
	Store     state.Store
	Searcher  platform.Searcher
	Replier   platform.Replier
	Liker     platform.Liker
	Graph     platform.GraphLister
	Metrics   platform.MetricsFetcher
	Generator generate.Generator
	Filter    *filter.Filter
	Persona   persona.Persona
	Logger    *slog.Logger
}

// New creates an agent. A nil Filter uses the default sensitive-keyword
// list; a nil Logger uses slog.Default().
func New(cfg Config, deps Deps) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := deps.Filter
	if f == nil {
		f = filter.New(nil)
	}

	graph := socialgraph.New(deps.Graph, logger)
	if cfg.GraphMaxPages > 0 {
		graph.MaxPages = cfg.GraphMaxPages
	}
	if cfg.PageDelayMax > 0 {
		graph.PageDelayMin = cfg.PageDelayMin
		graph.PageDelayMax = cfg.PageDelayMax
	}

	led := ledger.New(deps.Metrics, logger)
	if cfg.MetricsBatch > 0 {
		led.BatchSize = cfg.MetricsBatch
	}
	if cfg.PageDelayMax > 0 {
		led.BatchDelayMin = cfg.PageDelayMin
		led.BatchDelayMax = cfg.PageDelayMax
	}

	return &Agent{
		cfg:      cfg,
		store:    deps.Store,
		searcher: deps.Searcher,
		replier:  deps.Replier,
		liker:    deps.Liker,
		graph:    graph,
		ledger:   led,
		gen:      deps.Generator,
		filter:   f,
		persona:  deps.Persona,
		logger:   logger.With("component", "agent"),
		phase:    PhaseIdle,
		now:      time.Now,
		sleep:    sleepCtx,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
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

// Report summarizes one run for the caller.
type Report struct {
	RunID           string
	Fetched         int
	Replied         int
	WouldReply      int
	SkippedLowValue int
}

func (a *Agent) setPhase(p Phase) {
	a.phase = p
	a.logger.Debug("phase", "phase", p)
}

// Phase returns the agent's current lifecycle phase.
func (a *Agent) Phase() Phase { return a.phase }

// Run executes one engagement pass. It returns an error only for the
// fatal cases: a search failure at the top of the run or a state
// persistence failure. Everything per-candidate is logged and skipped.
func (a *Agent) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	logger := a.logger.With("run_id", report.RunID)
	logger.Info("engagement pass starting",
		"dry", a.cfg.Dry,
		"budget", a.cfg.ReplyBudget,
		"personality", a.persona.ID,
	)

	st := a.store.Load(ctx)

	// Fetching. A failure here is fatal: replying against a partial or
	// inconsistent candidate set is worse than doing nothing.
	a.setPhase(PhaseFetching)
	result, err := a.search(ctx, st, logger)
	if err != nil {
		a.setPhase(PhaseFailed)
		return report, fmt.Errorf("search candidates: %w", err)
	}

	candidates := result.Candidates
	report.Fetched = len(candidates)
	logger.Info("candidates fetched", "count", len(candidates))

	if len(candidates) == 0 {
		if err := a.finishCursor(ctx, st, result, logger); err != nil {
			return report, err
		}
		a.setPhase(PhaseDone)
		return report, nil
	}

	// Upstream sometimes omits the author expansion; keep those rows but
	// mark them degraded (no cooldown tracking).
	a.setPhase(PhaseFiltering)
	for i := range candidates {
		candidates[i].EnsureAuthorID()
		if candidates[i].AuthorSynthetic {
			logger.Warn("candidate missing author id, synthesized placeholder",
				"post_id", candidates[i].ID)
		}
	}

	// Ranking.
	a.setPhase(PhaseRanking)
	followersTTL, followingTTL := a.cfg.GraphTTL, a.cfg.GraphTTL
	if a.cfg.RefreshFollowers {
		followersTTL = 0
	}
	if a.cfg.RefreshFollowing {
		followingTTL = 0
	}
	followers := a.graph.Followers(ctx, st, followersTTL)
	following := a.graph.Following(ctx, st, followingTTL)

	ranked := ranker.Rank(candidates, followers, following, ranker.Config{
		MinFollowers:   a.cfg.MinFollowers,
		LowValueCutoff: a.cfg.LowValueCutoff,
	})

	highValue := 0
	for _, r := range ranked {
		if !r.Score.IsLowValue {
			highValue++
		}
	}
	logger.Info("candidates ranked",
		"high_value", highValue,
		"low_value", len(ranked)-highValue,
	)

	// Admitting & replying.
	a.setPhase(PhaseReplying)
	if err := a.replyPass(ctx, st, ranked, report, logger); err != nil {
		return report, err
	}

	// Final cursor update, full runs only.
	a.setPhase(PhasePersist)
	if err := a.finishCursor(ctx, st, result, logger); err != nil {
		return report, err
	}

	a.setPhase(PhaseDone)
	logger.Info("engagement pass complete",
		"replied", report.Replied,
		"would_reply", report.WouldReply,
		"skipped_low_value", report.SkippedLowValue,
	)
	return report, nil
}

// search fetches candidates, retrying exactly once with a cleared cursor
// when the platform rejects the persisted position token.
func (a *Agent) search(ctx context.Context, st *state.BotState, logger *slog.Logger) (*platform.SearchResult, error) {
	result, err := a.searcher.Search(ctx, a.cfg.Query, st.Cursor, a.cfg.SearchCap)
	if err == nil {
		return result, nil
	}

	var badReq *platform.BadRequestError
	if errors.As(err, &badReq) && badReq.InvalidCursor && st.Cursor != "" {
		logger.Warn("stored cursor rejected, retrying without it", "cursor", st.Cursor)
		st.Cursor = ""
		return a.searcher.Search(ctx, a.cfg.Query, "", a.cfg.SearchCap)
	}

	var rateErr *platform.RateLimitError
	if errors.As(err, &rateErr) {
		logger.Error("search rate limited, aborting run")
	}
	return nil, err
}

// replyPass walks the ranked list once, applying the rejection chain in
// order. Only reaching the end of the chain counts as a reply.
func (a *Agent) replyPass(ctx context.Context, st *state.BotState, ranked []ranker.Ranked, report *Report, logger *slog.Logger) error {
	admitted := func() int { return report.Replied + report.WouldReply }

	for _, r := range ranked {
		if admitted() >= a.cfg.ReplyBudget {
			break
		}

		c := r.Candidate
		clog := logger.With(
			"post_id", c.ID,
			"bucket", r.Score.Label,
			"followers", r.Score.FollowerCount,
		)

		// Strategic low-value skip: hold slots while enough high-value
		// targets remain eligible.
		if r.Score.IsLowValue {
			remaining := a.cfg.ReplyBudget - admitted()
			eligible := a.eligibleHighValue(st, ranked)
			if ranker.ReserveForHighValue(eligible, remaining, a.cfg.HighValueShare) {
				clog.Info("skipping low-value target, reserving slots",
					"eligible_high_value", eligible,
					"remaining_budget", remaining,
				)
				report.SkippedLowValue++
				continue
			}
		}

		if st.HasReplied(c.ID) {
			clog.Debug("already replied to post")
			continue
		}

		if !c.AuthorSynthetic && st.AuthorOnCooldown(c.AuthorID, a.cfg.Cooldown, a.now()) {
			clog.Debug("author on cooldown", "author_id", c.AuthorID)
			continue
		}

		if d := a.filter.ShouldSkip(c.Text); d.Skip {
			clog.Info("content filtered", "reason", d.Reason)
			continue
		}

		rc := replyctx.Build(c, a.cfg.Overrides)
		clog.Debug("reply context",
			"lang", rc.Language,
			"part_of_day", rc.PartOfDay,
			"weekend", rc.IsWeekend,
			"mirror_emoji", rc.MirrorEmoji,
		)

		gen := a.gen.Generate(ctx, c, rc, a.persona)
		if gen.Skip {
			clog.Info("no suitable reply generated", "reason", gen.SkipReason)
			continue
		}

		if a.cfg.Dry {
			clog.Info("would reply", "text", gen.Text, "template", gen.TemplateID)
			if a.cfg.AutoLike {
				clog.Info("would like source post")
			}
			report.WouldReply++
			a.paceBetweenReplies(ctx, admitted())
			continue
		}

		replyID, err := a.replier.Reply(ctx, c.ID, gen.Text)
		if err != nil {
			clog.Warn("reply failed, moving on", "error", err)
			continue
		}
		clog.Info("replied", "reply_id", replyID, "text", gen.Text)

		if a.cfg.AutoLike {
			a.likeSource(ctx, c.ID, clog)
		}

		// Success bookkeeping, persisted immediately so a kill between
		// candidates loses at most the in-flight reply.
		st.MarkReplied(c, a.now())
		a.ledger.Record(st, c.ID, replyID, c.AuthorID, gen.TemplateID)
		if err := a.store.Save(ctx, st); err != nil {
			a.setPhase(PhaseFailed)
			return fmt.Errorf("persist after reply: %w", err)
		}
		report.Replied++

		a.paceBetweenReplies(ctx, admitted())
	}

	return nil
}

// eligibleHighValue counts high-value candidates still available for
// admission: not yet replied to and their author off cooldown.
func (a *Agent) eligibleHighValue(st *state.BotState, ranked []ranker.Ranked) int {
	now := a.now()
	n := 0
	for _, r := range ranked {
		if r.Score.IsLowValue {
			continue
		}
		c := r.Candidate
		if st.HasReplied(c.ID) {
			continue
		}
		if !c.AuthorSynthetic && st.AuthorOnCooldown(c.AuthorID, a.cfg.Cooldown, now) {
			continue
		}
		n++
	}
	return n
}

// likeSource likes the source post after its reply. Likes have a much
// stricter upstream budget than replies, so each one waits out a long
// randomized delay first. Failures are swallowed.
func (a *Agent) likeSource(ctx context.Context, postID string, logger *slog.Logger) {
	d := a.randDelay(a.cfg.LikeDelayMin, a.cfg.LikeDelayMax)
	if d > 0 {
		logger.Debug("pacing before like", "delay", d.Round(time.Second))
		a.sleep(ctx, d)
	}
	if err := a.liker.Like(ctx, postID); err != nil {
		logger.Warn("like failed", "error", err)
		return
	}
	logger.Info("liked source post")
}

func (a *Agent) paceBetweenReplies(ctx context.Context, admitted int) {
	if admitted >= a.cfg.ReplyBudget {
		return
	}
	if d := a.randDelay(a.cfg.ReplyDelayMin, a.cfg.ReplyDelayMax); d > 0 {
		a.sleep(ctx, d)
	}
}

func (a *Agent) randDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(a.rng.Int63n(int64(max-min)))
}

// finishCursor advances the feed position and persists the final state.
// Dry runs leave both alone.
func (a *Agent) finishCursor(ctx context.Context, st *state.BotState, result *platform.SearchResult, logger *slog.Logger) error {
	if a.cfg.Dry {
		logger.Info("dry run: state not persisted")
		return nil
	}
	if result.NewestID != "" {
		st.Cursor = result.NewestID
	}
	if err := a.store.Save(ctx, st); err != nil {
		a.setPhase(PhaseFailed)
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Score runs one score-collection pass over the outcome ledger and
// persists the updates.
func (a *Agent) Score(ctx context.Context, minAge time.Duration) (int, error) {
	st := a.store.Load(ctx)

	updated, err := a.ledger.CollectScores(ctx, st, minAge)
	if err != nil {
		return 0, err
	}
	if updated == 0 {
		return 0, nil
	}

	if err := a.store.Save(ctx, st); err != nil {
		return updated, fmt.Errorf("persist scored outcomes: %w", err)
	}
	return updated, nil
}
