package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/broker/brokerobs"
	"krx-trader/internal/broker/kis"
	"krx-trader/internal/broker/paper"
	"krx-trader/internal/broker/zerodha"
	"krx-trader/internal/candidate"
	"krx-trader/internal/clock"
	"krx-trader/internal/eod"
	"krx-trader/internal/eod/eodobs"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/notify"
	"krx-trader/internal/runner"
	"krx-trader/internal/runner/krx"
	"krx-trader/internal/scheduler"
	"krx-trader/internal/store"
	"krx-trader/internal/strategy"
	"krx-trader/internal/trace"
	"krx-trader/internal/tradelog"
	"krx-trader/internal/types"
	"krx-trader/internal/wallet"
)

const (
	runnerPeriodic = "periodic"
	runnerRealTime = "realtime"
	runnerUpper    = "upper"
)

// initializeSystem initializes logger, tracer, and EOD summarizer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	eod.SetDefaultSummarizer(eodobs.Wrap(eod.NewSummarizer()))
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	tradelog.SetDir(cfg.LogDir)
	return cfg, nil
}

// compressOldLogs compresses old journal and session files if retention is configured
func compressOldLogs(ctx context.Context) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := tradelog.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeBroker builds the brokerage adapter for the configured provider,
// simulates orders in DRY_RUN and wraps it with observability.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.BrokerAPI, error) {
	var api interfaces.BrokerAPI
	switch cfg.Broker.Provider {
	case store.ProviderKite:
		z, err := zerodha.NewZerodha(ctx, zerodha.Params{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:    cfg.Broker.Exchange,
		})
		if err != nil {
			return nil, fmt.Errorf("kite: %w", err)
		}
		api = z
	default:
		k, err := kis.New(ctx, kis.Config{
			AppKey:        os.Getenv("KIS_APP_KEY"),
			AppSecret:     os.Getenv("KIS_APP_SECRET"),
			Account:       os.Getenv("KIS_ACCOUNT"),
			Virtual:       cfg.Broker.Virtual,
			RatePerSecond: cfg.Broker.RatePerSecond,
		})
		if err != nil {
			return nil, err
		}
		api = k
	}

	if cfg.Mode == store.ModeDryRun {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
		api = paper.New(api)
	}
	logger.Info(ctx, "Broker ready", "provider", cfg.Broker.Provider, "virtual", cfg.Broker.Virtual, "mode", cfg.Mode)
	return brokerobs.Wrap(api), nil
}

func initializeNotifier(ctx context.Context, cfg *store.Config) interfaces.Notifier {
	webhook := os.Getenv(cfg.Notify.WebhookEnv)
	if webhook == "" {
		logger.Warn(ctx, "No webhook configured - notifications disabled", "env", cfg.Notify.WebhookEnv)
		return notify.Nop{}
	}
	return notify.NewDiscord(webhook)
}

// app holds the long-lived collaborators every runner session shares.
type app struct {
	cfg      *store.Config
	client   *broker.Client
	wallet   *wallet.Wallet
	notifier interfaces.Notifier
	store    *candidate.Store
	sources  map[string]*candidate.Source
	registry *strategy.Registry
	upper    strategy.UpperLimitConfig

	// controllers scheduled by buildScheduler, stopped on shutdown
	controllers []*runner.Controller
}

func newApp(ctx context.Context, cfg *store.Config) (*app, error) {
	api, err := initializeBroker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := broker.NewClient(api, broker.Options{
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxAttempts: cfg.Retry.MaxAttempts,
	})

	st, err := candidate.Open(cfg.Candidates.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open candidate store: %w", err)
	}

	u := cfg.Strategy.UpperLimit
	upper := strategy.UpperLimitConfig{
		MinPrevBody:    decimal.NewFromFloat(u.MinPrevBody),
		MinAmountRatio: decimal.NewFromFloat(u.MinAmountRatio),
		MinGap:         decimal.NewFromFloat(u.MinGap),
		MaxGap:         decimal.NewFromFloat(u.MaxGap),
	}

	return &app{
		cfg:      cfg,
		client:   client,
		wallet:   wallet.New(client),
		notifier: initializeNotifier(ctx, cfg),
		store:    st,
		sources:  newSources(st, cfg),
		registry: strategy.NewRegistry(upper, types.Currency(cfg.Broker.Currency)),
		upper:    upper,
	}, nil
}

// newSources gives each runner kind its own view of the advisory store.
func newSources(st *candidate.Store, cfg *store.Config) map[string]*candidate.Source {
	out := make(map[string]*candidate.Source, 3)
	for _, kind := range []string{runnerPeriodic, runnerRealTime, runnerUpper} {
		out[kind] = candidate.NewSource(st, sourceOptions(cfg, kind))
	}
	return out
}

// sourceOptions screens only the periodic runner's candidates. The
// realtime runner takes the capped list unfiltered and the limit-up
// runner takes every qualifying symbol.
func sourceOptions(cfg *store.Config, kind string) candidate.Options {
	if kind == runnerUpper {
		return candidate.Options{}
	}
	opts := candidate.Options{Limit: cfg.Candidates.Limit}
	f := cfg.Candidates.Filters
	if kind != runnerPeriodic || !f.Enabled {
		return opts
	}
	filter := candidate.DefaultFilter()
	if f.MinGrowthScore > 0 {
		filter.MinGrowthScore = f.MinGrowthScore
	}
	if f.MinFinancialStabilityScore > 0 {
		filter.MinFinancialStabilityScore = f.MinFinancialStabilityScore
	}
	if len(f.Valuations) > 0 {
		filter.Valuations = f.Valuations
	}
	if len(f.Signals) > 0 {
		filter.Signals = f.Signals
	}
	opts.Filter = &filter
	return opts
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) deps(s interfaces.Strategy, name string) krx.Deps {
	return krx.Deps{
		Client:   a.client,
		Wallet:   a.wallet,
		Executor: runner.NewExecutor(a.client, a.wallet, s, tradelog.Journal{Runner: name}),
		Notifier: a.notifier,
		Currency: types.Currency(a.cfg.Broker.Currency),
	}
}

func exits(r store.RunnerConfig) krx.ExitConfig {
	return krx.ExitConfig{
		TakeProfit: decimal.NewFromFloat(r.TakeProfit),
		StopLoss:   decimal.NewFromFloat(r.StopLoss),
	}
}

// newRunner builds a fresh session for kind.
func (a *app) newRunner(kind string) (*runner.Runner, error) {
	opts := runner.Options{LogDir: a.cfg.LogDir, Notifier: a.notifier}
	switch kind {
	case runnerPeriodic:
		rc := a.cfg.Runners.Periodic
		s, err := a.registry.Get(rc.Strategy)
		if err != nil {
			return nil, err
		}
		t := krx.NewPeriodic(a.deps(s, krx.NamePeriodic), a.sources[runnerPeriodic], krx.PeriodicConfig{
			MaxStock:     rc.MaxStock,
			MaxBuyAmount: decimal.NewFromInt(rc.MaxBuyAmount),
			Exits:        exits(rc),
		})
		return runner.New(t, runner.ModePeriodic, opts), nil
	case runnerRealTime:
		rc := a.cfg.Runners.RealTime
		s, err := a.registry.Get(rc.Strategy)
		if err != nil {
			return nil, err
		}
		t := krx.NewRealTime(a.deps(s, krx.NameRealTime), a.sources[runnerRealTime], krx.RealTimeConfig{
			MaxStock:     rc.MaxStock,
			MaxBuyAmount: decimal.NewFromInt(rc.MaxBuyAmount),
			Period:       time.Duration(rc.PollSeconds) * time.Second,
			Exits:        exits(rc),
			ExitsEnabled: rc.ExitsEnabled,
		})
		return runner.New(t, runner.ModeRealTime, opts), nil
	case runnerUpper:
		uc := a.cfg.Runners.Upper
		h, m, err := clock.ParseHHMM(uc.TradeStart)
		if err != nil {
			return nil, err
		}
		s := strategy.NewUpperLimitBreakout(a.upper)
		t := krx.NewUpperLimit(a.deps(s, krx.NameUpperLimit), a.sources[runnerUpper], s, krx.UpperLimitConfig{
			MaxBuyAmount: decimal.NewFromInt(uc.MaxBuyAmount),
			MaxTrial:     uc.MaxTrial,
			Period:       time.Duration(uc.PeriodSeconds) * time.Second,
			StartHour:    h,
			StartMinute:  m,
		})
		return runner.New(t, runner.ModeRealTime, opts), nil
	}
	return nil, fmt.Errorf("unknown runner %q", kind)
}

func (a *app) controller(kind string) *runner.Controller {
	return runner.NewController(kind, func() (*runner.Runner, error) { return a.newRunner(kind) })
}

// startSession detaches the session from the scheduler's context so a
// shutdown signal reaches it only through Stop.
func startSession(c *runner.Controller) func(context.Context) error {
	return func(ctx context.Context) error {
		return c.Start(context.WithoutCancel(ctx))
	}
}

// stopSessions stops every scheduled session that is still active, joining
// its worker and cancelling its pending orders.
func (a *app) stopSessions(ctx context.Context) error {
	var errs []error
	for _, c := range a.controllers {
		if c.Active() == nil {
			continue
		}
		logger.Info(ctx, "Stopping active session", "controller", c.Name())
		if err := c.Stop(ctx); err != nil && !errors.Is(err, runner.ErrNotActive) {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// buildScheduler registers start/stop jobs for every enabled runner and the
// EOD summary.
func (a *app) buildScheduler() (*scheduler.Scheduler, error) {
	sc := a.cfg.Schedule
	s := scheduler.New(scheduler.Options{
		Heartbeat: time.Duration(sc.HeartbeatMinutes) * time.Minute,
		Notifier:  a.notifier,
	})
	times := map[string][2]string{
		runnerPeriodic: {sc.PeriodicStart, sc.PeriodicStop},
		runnerRealTime: {sc.RealTimeStart, sc.RealTimeStop},
		runnerUpper:    {sc.UpperStart, sc.UpperStop},
	}
	for _, kind := range sc.Enabled {
		c := a.controller(kind)
		a.controllers = append(a.controllers, c)
		at := times[kind]
		if err := s.Add(scheduler.Job{Name: kind + "_start", At: at[0], Run: startSession(c)}); err != nil {
			return nil, err
		}
		if err := s.Add(scheduler.Job{Name: kind + "_stop", At: at[1], Run: c.Stop}); err != nil {
			return nil, err
		}
	}
	err := s.Add(scheduler.Job{Name: "eod_summary", At: sc.EOD, Run: func(ctx context.Context) error {
		path, err := eod.SummarizeToday(ctx)
		if err != nil {
			return err
		}
		if path != "" {
			logger.Info(ctx, "EOD CSV written", "path", path)
			notify.Best(ctx, a.notifier, "EOD summary written: "+path)
		}
		return nil
	}})
	return s, err
}
