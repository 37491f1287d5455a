package krx

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/runner"
	"krx-trader/internal/types"
)

const (
	NameRealTime = "krx_realtime"

	DefaultPollPeriod = 10 * time.Second
)

type RealTimeConfig struct {
	MaxStock     int
	MaxBuyAmount decimal.Decimal
	Period       time.Duration
	// Exits is evaluated every round when ExitsEnabled is set.
	Exits        ExitConfig
	ExitsEnabled bool
}

// RealTime polls candidates until stopped and buys each one at most once,
// when its quote reaches the advised buy price.
type RealTime struct {
	base
	source interfaces.CandidateSource
	cfg    RealTimeConfig
	sold   map[string]struct{}
}

var _ runner.Trader = (*RealTime)(nil)

func NewRealTime(deps Deps, source interfaces.CandidateSource, cfg RealTimeConfig) *RealTime {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPollPeriod
	}
	return &RealTime{
		base:   newBase(NameRealTime, deps),
		source: source,
		cfg:    cfg,
		sold:   map[string]struct{}{},
	}
}

func (r *RealTime) OnStartup(ctx context.Context) error {
	if err := r.refreshHoldings(ctx); err != nil {
		return err
	}
	cs, err := r.source.FetchToday(ctx, r.held())
	if err != nil {
		return fmt.Errorf("fetch candidates: %w", err)
	}
	r.candidates = cs
	r.logSnapshot(ctx)
	r.pushStatus(ctx)
	return nil
}

// Monitor returns nil once tok is cancelled. A failed holdings refresh ends
// the session; failures on a single candidate do not.
func (r *RealTime) Monitor(ctx context.Context, tok *runner.Token, orders runner.Orders) error {
	for {
		if tok.Cancelled() {
			return nil
		}
		if err := r.refreshHoldings(ctx); err != nil {
			return err
		}
		if r.cfg.ExitsEnabled {
			r.evaluateExits(ctx, tok, orders, r.cfg.Exits, r.sold)
		}
		if len(r.holdings) < r.cfg.MaxStock {
			r.tryCandidates(ctx, tok, orders)
		}
		if !tok.Sleep(r.cfg.Period) {
			return nil
		}
	}
}

func (r *RealTime) tryCandidates(ctx context.Context, tok *runner.Token, orders runner.Orders) {
	remaining := make([]types.Candidate, 0, len(r.candidates))
	for i, c := range r.candidates {
		if tok.Cancelled() {
			remaining = append(remaining, r.candidates[i:]...)
			break
		}
		if _, held := r.holdings[c.StockCode]; held {
			remaining = append(remaining, c)
			continue
		}
		if r.tryCandidate(ctx, orders, c) {
			continue
		}
		remaining = append(remaining, c)
	}
	r.candidates = remaining
}

// tryCandidate reports whether a buy was attempted for c.
func (r *RealTime) tryCandidate(ctx context.Context, orders runner.Orders, c types.Candidate) bool {
	q, err := r.Client.Quote(ctx, c.StockCode)
	if err != nil {
		logger.ErrorWithErr(ctx, "Quote failed", err, "symbol", c.StockCode)
		return false
	}
	if q == nil || !c.BuyPrice.IsPositive() || q.Price.GreaterThan(c.BuyPrice) {
		return false
	}
	err = orders.Buy(ctx, runner.BuyRequest{
		Symbol:   c.StockCode,
		Price:    c.BuyPrice,
		Quantity: types.Quantity(r.cfg.MaxBuyAmount, q.Price),
		Reason:   "price reached advised buy price",
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Buy failed", err, "symbol", c.StockCode)
	}
	return true
}
