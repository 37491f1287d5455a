package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/notify"
	"krx-trader/internal/trace"
)

type Options struct {
	// LogDir is the root for per-runner daily session logs. Empty disables
	// the session file.
	LogDir string
	// Notifier receives crash reports. Defaults to notify.Nop.
	Notifier interfaces.Notifier
}

// Runner drives one Trader through IDLE, STARTING, MONITORING, STOPPING and
// STOPPED. A Runner is single use; the Controller builds a fresh one per
// session.
type Runner struct {
	id     string
	trader Trader
	mode   Mode
	opts   Options

	mu      sync.Mutex
	state   State
	token   *Token
	session *logger.Session
	ctx     context.Context
	done    chan struct{}
	err     error
}

var _ Orders = (*Runner)(nil)

func New(trader Trader, mode Mode, opts Options) *Runner {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	return &Runner{
		id:     uuid.NewString(),
		trader: trader,
		mode:   mode,
		opts:   opts,
		state:  StateIdle,
		token:  NewToken(),
		done:   make(chan struct{}),
	}
}

func (r *Runner) Name() string { return r.trader.Name() }

// ID identifies this session in logs and spans.
func (r *Runner) ID() string { return r.id }

func (r *Runner) Mode() Mode { return r.mode }

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !canTransition(r.state, to) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, r.state, to, r.trader.Name())
	}
	r.state = to
	return nil
}

// Done is closed when the monitor has finished.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Err returns the monitor's fatal error once Done is closed.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Start runs the startup hook and then the monitor. In periodic mode the
// single pass completes before Start returns; in real-time mode the loop
// runs on a worker goroutine bound to ctx, which must outlive the session.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.transition(StateStarting); err != nil {
		return err
	}

	if r.opts.LogDir != "" {
		s, err := logger.OpenSession(r.opts.LogDir, r.trader.Name())
		if err != nil {
			logger.Warn(ctx, "Session log unavailable", "runner", r.trader.Name(), "error", err)
		} else {
			r.session = s
			ctx = logger.WithSession(ctx, s)
		}
	}
	ctx = trace.WithSession(ctx, r.trader.Name(), r.mode.String(), r.id)
	r.ctx = ctx
	logger.Info(ctx, "#### Logging for runner started ####", "runner", r.trader.Name(), "mode", r.mode.String(), "session", r.id)

	sctx, span := trace.StartSpan(ctx, "runner.Start")
	err := r.trader.OnStartup(sctx)
	span.End()
	if err != nil {
		logger.ErrorWithErr(ctx, "Runner startup failed", err, "runner", r.trader.Name())
		close(r.done)
		_ = r.transition(StateStopped)
		r.closeSession()
		return fmt.Errorf("%s startup: %w", r.trader.Name(), err)
	}

	if err := r.transition(StateMonitoring); err != nil {
		return err
	}

	if r.mode == ModePeriodic {
		r.work()
		return r.Err()
	}

	go r.work()
	logger.Info(r.ctx, "Monitor worker started", "runner", r.trader.Name())
	return nil
}

// work runs Monitor once and records its outcome.
func (r *Runner) work() {
	defer close(r.done)
	err := r.monitor()
	if err == nil {
		return
	}
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	logger.ErrorWithErr(r.ctx, "Monitor stopped with error", err, "runner", r.trader.Name())
	notify.Best(r.ctx, r.opts.Notifier, notify.Crash(r.trader.Name(), err))
}

func (r *Runner) monitor() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("monitor panic: %v\n%s", p, debug.Stack())
		}
	}()
	ctx, span := trace.StartSpan(r.ctx, "runner.Monitor")
	defer span.End()
	return r.trader.Monitor(ctx, r.token, r)
}

// Stop cancels the token, waits for the monitor to return and only then
// runs the shutdown hook. The result joins the monitor's fatal error with
// any shutdown error.
func (r *Runner) Stop(ctx context.Context) error {
	if err := r.transition(StateStopping); err != nil {
		return err
	}
	sctx := r.ctx
	if sctx == nil {
		sctx = ctx
	}

	r.token.Cancel()
	logger.Info(sctx, "Monitor shutdown requested", "runner", r.trader.Name())
	<-r.done
	logger.Info(sctx, "Monitor worker joined", "runner", r.trader.Name())

	hctx, span := trace.StartSpan(sctx, "runner.Shutdown")
	shutdownErr := r.trader.OnShutdown(hctx)
	span.End()
	if shutdownErr != nil {
		logger.ErrorWithErr(sctx, "Runner shutdown hook failed", shutdownErr, "runner", r.trader.Name())
		shutdownErr = fmt.Errorf("%s shutdown: %w", r.trader.Name(), shutdownErr)
	}

	if err := r.transition(StateStopped); err != nil {
		return errors.Join(r.Err(), shutdownErr, err)
	}
	logger.Info(sctx, "Runner stopped", "runner", r.trader.Name())
	r.closeSession()
	return errors.Join(r.Err(), shutdownErr)
}

func (r *Runner) closeSession() {
	if r.session == nil {
		return
	}
	if err := r.session.Close(); err != nil {
		logger.Warn(context.Background(), "Session log close failed", "runner", r.trader.Name(), "error", err)
	}
	r.session = nil
}

// Buy runs OnBuyStart, MakeBuyOrder and OnBuyEnd in that order. OnBuyEnd
// sees the placement error, if any.
func (r *Runner) Buy(ctx context.Context, req BuyRequest) error {
	hooks, _ := r.trader.(BuyHooks)
	if hooks != nil {
		hooks.OnBuyStart(ctx, req.Symbol)
	}
	err := r.trader.MakeBuyOrder(ctx, req)
	if hooks != nil {
		hooks.OnBuyEnd(ctx, req.Symbol, err)
	}
	return err
}

func (r *Runner) Sell(ctx context.Context, req SellRequest) error {
	hooks, _ := r.trader.(SellHooks)
	if hooks != nil {
		hooks.OnSellStart(ctx, req.Symbol)
	}
	err := r.trader.MakeSellOrder(ctx, req)
	if hooks != nil {
		hooks.OnSellEnd(ctx, req.Symbol, err)
	}
	return err
}
