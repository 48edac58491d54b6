// Gmbot is a social engagement agent for gm/gn greeting posts.
//
// Each invocation performs one bounded pass: fetch recent greeting posts,
// rank them by relationship and reach, reply to the best ones within a
// per-run budget, and record every posted reply in a persistent outcome
// ledger. A separate pass collects engagement metrics for past replies so
// reply strategies can be compared offline. Configuration is loaded from
// a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	gmbot run                One engagement pass
//	gmbot run --dry          Decide everything, post nothing
//	gmbot score              Collect engagement metrics for past replies
//	gmbot report             Per-template reward summary
//	gmbot version            Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dawnloop/gmbot/internal/agent"
	"github.com/dawnloop/gmbot/internal/buildinfo"
	"github.com/dawnloop/gmbot/internal/config"
	"github.com/dawnloop/gmbot/internal/generate"
	"github.com/dawnloop/gmbot/internal/ledger"
	"github.com/dawnloop/gmbot/internal/persona"
	"github.com/dawnloop/gmbot/internal/platform/twitter"
	"github.com/dawnloop/gmbot/internal/replyctx"
	"github.com/dawnloop/gmbot/internal/state"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full lifecycle
// can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags. Every field overrides a
// config value for this invocation only; nothing here is persisted.
type options struct {
	configPath string

	dry     bool
	offline bool
	noLike  bool

	refreshFollowers bool
	refreshFollowing bool

	limit        int // reply budget override; 0 means use config
	ageMinutes   int // score minimum age override; 0 means use config
	minFollowers int // high-reach threshold override; -1 means use config

	forceLang   string
	forceTime   string // "weekend" or "weekday"
	personality string
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the surface here is small.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	opts := options{minFollowers: -1}
	var command string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-config="):
			opts.configPath = strings.TrimPrefix(arg, "-config=")
		case arg == "--dry":
			opts.dry = true
		case arg == "--offline":
			opts.offline = true
		case arg == "--no-like":
			opts.noLike = true
		case arg == "--refresh-followers":
			opts.refreshFollowers = true
		case arg == "--refresh-following":
			opts.refreshFollowing = true
		case strings.HasPrefix(arg, "--limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit="))
			if err != nil || n < 1 {
				return fmt.Errorf("invalid --limit value: %s", arg)
			}
			opts.limit = n
		case strings.HasPrefix(arg, "--age="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--age="))
			if err != nil || n < 0 {
				return fmt.Errorf("invalid --age value: %s", arg)
			}
			opts.ageMinutes = n
		case strings.HasPrefix(arg, "--min-followers="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--min-followers="))
			if err != nil || n < 0 {
				return fmt.Errorf("invalid --min-followers value: %s", arg)
			}
			opts.minFollowers = n
		case strings.HasPrefix(arg, "--force-lang="):
			opts.forceLang = strings.TrimPrefix(arg, "--force-lang=")
		case strings.HasPrefix(arg, "--force-time="):
			v := strings.TrimPrefix(arg, "--force-time=")
			if v != "weekend" && v != "weekday" {
				return fmt.Errorf("invalid --force-time value: %q (expected weekend or weekday)", v)
			}
			opts.forceTime = v
		case strings.HasPrefix(arg, "--personality="):
			opts.personality = strings.TrimPrefix(arg, "--personality=")
		case arg == "-h" || arg == "-help" || arg == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(arg, "-") && command == "":
			command = arg
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	switch command {
	case "run":
		return runEngage(ctx, stdout, opts)
	case "score":
		return runScore(ctx, stdout, opts)
	case "report":
		return runReport(ctx, stdout, opts)
	case "version":
		return runVersion(stdout)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runEngage handles "gmbot run": one full engagement pass.
func runEngage(ctx context.Context, stdout io.Writer, opts options) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := setup(stdout, opts)
	if err != nil {
		return err
	}
	if err := requireCredentials(cfg, opts.offline); err != nil {
		return err
	}
	logger.Info("starting", "build", buildinfo.String(), "dry", opts.dry, "offline", opts.offline)

	a, cleanup, err := buildAgent(cfg, opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := a.Run(ctx)
	if err != nil {
		return fmt.Errorf("engagement pass: %w", err)
	}

	if opts.dry {
		fmt.Fprintf(stdout, "dry run: %d candidates, would reply to %d (%d low-value skipped)\n",
			report.Fetched, report.WouldReply, report.SkippedLowValue)
	} else {
		fmt.Fprintf(stdout, "replied to %d of %d candidates (%d low-value skipped)\n",
			report.Replied, report.Fetched, report.SkippedLowValue)
	}
	return nil
}

// runScore handles "gmbot score": fetch engagement metrics for posted
// replies old enough to have accumulated signal, and persist the rewards.
func runScore(ctx context.Context, stdout io.Writer, opts options) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := setup(stdout, opts)
	if err != nil {
		return err
	}
	// Scoring reads public metrics only; the model API is never involved.
	if err := requireCredentials(cfg, true); err != nil {
		return err
	}

	a, cleanup, err := buildAgent(cfg, opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	minAge := time.Duration(cfg.Engage.ScoreAgeMinutes) * time.Minute
	if opts.ageMinutes > 0 {
		minAge = time.Duration(opts.ageMinutes) * time.Minute
	}

	updated, err := a.Score(ctx, minAge)
	if err != nil {
		return fmt.Errorf("score collection: %w", err)
	}
	fmt.Fprintf(stdout, "scored %d outcomes\n", updated)
	return nil
}

// runReport handles "gmbot report": a per-template reward table built
// from the scored outcomes. Read-only; no network.
func runReport(ctx context.Context, stdout io.Writer, opts options) error {
	cfg, logger, err := setup(stdout, opts)
	if err != nil {
		return err
	}

	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	st := store.Load(ctx)

	stats := ledger.Summarize(st)
	if len(stats) == 0 {
		fmt.Fprintln(stdout, "no scored outcomes yet — run 'gmbot score' after replies have had time to accumulate engagement")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEMPLATE\tSCORED\tLIKES\tREPLIES\tREWARD")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.TemplateID, s.Scored, s.Likes, s.Replies, s.TotalReward)
	}
	return tw.Flush()
}

// runVersion prints build metadata.
func runVersion(w io.Writer) error {
	fmt.Fprintln(w, buildinfo.String())
	info := buildinfo.Info()
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "gmbot - gm/gn engagement agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: gmbot [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run        One engagement pass: search, rank, reply")
	fmt.Fprintln(w, "  score      Collect engagement metrics for past replies")
	fmt.Fprintln(w, "  report     Per-template reward summary")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>        Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  --dry                 Decide everything, post and persist nothing")
	fmt.Fprintln(w, "  --offline             Use template replies instead of the model API")
	fmt.Fprintln(w, "  --limit=N             Reply budget for this run")
	fmt.Fprintln(w, "  --age=N               Minimum outcome age in minutes (score)")
	fmt.Fprintln(w, "  --min-followers=N     High-reach bucket threshold")
	fmt.Fprintln(w, "  --force-lang=XX       Force the reply language")
	fmt.Fprintln(w, "  --force-time=MODE     Force weekend or weekday tone")
	fmt.Fprintln(w, "  --refresh-followers   Rebuild the followers cache regardless of age")
	fmt.Fprintln(w, "  --refresh-following   Rebuild the following cache regardless of age")
	fmt.Fprintln(w, "  --no-like             Skip auto-liking replied posts")
	fmt.Fprintln(w, "  --personality=NAME    Persona preset (" + strings.Join(persona.Names(), ", ") + ")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// setup loads configuration and builds the logger at the configured level.
func setup(stdout io.Writer, opts options) (*config.Config, *slog.Logger, error) {
	cfgPath, err := config.FindConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	logger.Debug("config loaded", "path", cfgPath)

	return cfg, logger, nil
}

// requireCredentials fails fast when platform (and, unless offline, model)
// credentials are missing. The report command never calls this: it is
// read-only and local.
func requireCredentials(cfg *config.Config, offline bool) error {
	if missing := cfg.ValidateLive(offline); len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// buildStore constructs the configured persistence backend.
//
// Redis (when configured) is the authoritative store with the local file
// as a best-effort backup, so a wiped cloud key can be recovered from
// the last good local snapshot. SQLite and plain-file are local-only.
func buildStore(cfg *config.Config, logger *slog.Logger) (state.Store, func(), error) {
	switch {
	case cfg.Storage.Redis.Addr != "":
		r := state.NewRedisStore(
			cfg.Storage.Redis.Addr,
			cfg.Storage.Redis.Password,
			cfg.Storage.Redis.DB,
			cfg.Storage.Redis.Key,
			logger,
		)
		backup := state.NewFileStore(cfg.Storage.FilePath, logger)
		logger.Debug("state backend: redis with file backup",
			"addr", cfg.Storage.Redis.Addr, "backup", cfg.Storage.FilePath)
		return state.NewTiered(r, backup, logger), func() { _ = r.Close() }, nil

	case cfg.Storage.SQLitePath != "":
		s, err := state.NewSQLiteStore(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open state database %s: %w", cfg.Storage.SQLitePath, err)
		}
		logger.Debug("state backend: sqlite", "path", cfg.Storage.SQLitePath)
		return s, func() { _ = s.Close() }, nil

	default:
		logger.Debug("state backend: file", "path", cfg.Storage.FilePath)
		return state.NewFileStore(cfg.Storage.FilePath, logger), func() {}, nil
	}
}

// buildAgent assembles the full pipeline from config plus flag overrides.
func buildAgent(cfg *config.Config, opts options, logger *slog.Logger) (*agent.Agent, func(), error) {
	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	tw := twitter.New(twitter.Credentials{
		APIKey:       cfg.Twitter.APIKey,
		APISecret:    cfg.Twitter.APISecret,
		AccessToken:  cfg.Twitter.AccessToken,
		AccessSecret: cfg.Twitter.AccessSecret,
	}, logger)

	var gen generate.Generator
	if opts.offline {
		gen = generate.NewTemplateGenerator(time.Now().UnixNano())
		logger.Info("offline mode: template replies")
	} else {
		gen = generate.NewOpenAIGenerator(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.BaseURL,
			cfg.Engage.MaxReplyLen,
			logger,
		)
	}

	personaName := cfg.Personality
	if opts.personality != "" {
		personaName = opts.personality
	}
	p, err := persona.Get(personaName)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	acfg := agentConfig(cfg, opts)
	a := agent.New(acfg, agent.Deps{
		Store:     store,
		Searcher:  tw,
		Replier:   tw,
		Liker:     tw,
		Graph:     tw,
		Metrics:   tw,
		Generator: gen,
		Persona:   p,
		Logger:    logger,
	})
	return a, cleanup, nil
}

// agentConfig translates the YAML knobs plus flag overrides into the
// orchestrator's run configuration.
func agentConfig(cfg *config.Config, opts options) agent.Config {
	e := cfg.Engage

	budget := e.ReplyBudget
	if opts.limit > 0 {
		budget = opts.limit
	}
	minFollowers := e.MinFollowers
	if opts.minFollowers >= 0 {
		minFollowers = int64(opts.minFollowers)
	}
	autoLike := e.AutoLike == nil || *e.AutoLike
	if opts.noLike {
		autoLike = false
	}

	var overrides replyctx.Overrides
	overrides.Language = opts.forceLang
	if opts.forceTime != "" {
		weekend := opts.forceTime == "weekend"
		overrides.Weekend = &weekend
	}

	return agent.Config{
		Query:            e.Query,
		ReplyBudget:      budget,
		SearchCap:        e.SearchCap,
		MinFollowers:     minFollowers,
		LowValueCutoff:   e.LowValueCutoff,
		HighValueShare:   e.HighValueShare,
		Cooldown:         time.Duration(e.CooldownHours) * time.Hour,
		GraphTTL:         time.Duration(e.GraphTTLHours) * time.Hour,
		MaxReplyLen:      e.MaxReplyLen,
		Dry:              opts.dry,
		AutoLike:         autoLike,
		RefreshFollowers: opts.refreshFollowers,
		RefreshFollowing: opts.refreshFollowing,
		Overrides:        overrides,
		ReplyDelayMin:    time.Duration(e.ReplyDelayMinMs) * time.Millisecond,
		ReplyDelayMax:    time.Duration(e.ReplyDelayMaxMs) * time.Millisecond,
		LikeDelayMin:     time.Duration(e.LikeDelayMinMs) * time.Millisecond,
		LikeDelayMax:     time.Duration(e.LikeDelayMaxMs) * time.Millisecond,
		PageDelayMin:     time.Duration(e.PageDelayMinMs) * time.Millisecond,
		PageDelayMax:     time.Duration(e.PageDelayMaxMs) * time.Millisecond,
		GraphMaxPages:    e.GraphMaxPages,
		MetricsBatch:     e.MetricsBatch,
	}
}
