package krx

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/clock"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/runner"
	"krx-trader/internal/types"
)

const (
	NameUpperLimit = "krx_upper_limit"

	DefaultMaxTrial    = 20
	DefaultUpperPeriod = 300 * time.Second
	chartLookbackDays  = 4
)

type UpperLimitConfig struct {
	MaxBuyAmount decimal.Decimal
	MaxTrial     int
	Period       time.Duration
	// StartHour and StartMinute gate the first round, KST. Zero means 14:30.
	StartHour   int
	StartMinute int
}

// Breakout is the gate and entry pricing used by UpperLimit.
type Breakout interface {
	interfaces.Strategy
	interfaces.TargetPricer
}

// UpperLimit trades the day after a limit-up close. It waits for the
// afternoon gate, then polls the limit-up list for a bounded number of
// rounds.
type UpperLimit struct {
	base
	source   interfaces.LimitUpSource
	strategy Breakout
	cfg      UpperLimitConfig
}

var _ runner.Trader = (*UpperLimit)(nil)

func NewUpperLimit(deps Deps, source interfaces.LimitUpSource, strategy Breakout, cfg UpperLimitConfig) *UpperLimit {
	if cfg.MaxTrial <= 0 {
		cfg.MaxTrial = DefaultMaxTrial
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultUpperPeriod
	}
	if cfg.StartHour == 0 && cfg.StartMinute == 0 {
		cfg.StartHour, cfg.StartMinute = 14, 30
	}
	return &UpperLimit{base: newBase(NameUpperLimit, deps), source: source, strategy: strategy, cfg: cfg}
}

func (u *UpperLimit) OnStartup(ctx context.Context) error {
	if err := u.refreshHoldings(ctx); err != nil {
		return err
	}
	cs, err := u.source.FetchLimitUp(ctx, u.held())
	if err != nil {
		return fmt.Errorf("fetch limit-up candidates: %w", err)
	}
	u.candidates = cs
	u.logSnapshot(ctx)
	u.pushStatus(ctx)
	return nil
}

func (u *UpperLimit) Monitor(ctx context.Context, tok *runner.Token, orders runner.Orders) error {
	gate := clock.At(u.Now(), u.cfg.StartHour, u.cfg.StartMinute)
	if u.Now().Before(gate) {
		logger.Info(ctx, "Waiting for trade start", "at", gate.Format("15:04"))
		if !tok.SleepUntil(u.Now, gate, time.Minute) {
			return nil
		}
	}

	for trial := 1; trial <= u.cfg.MaxTrial; trial++ {
		if tok.Cancelled() {
			return nil
		}
		logger.Debug(ctx, "Upper limit round", "trial", trial, "max_trial", u.cfg.MaxTrial)
		for _, c := range u.candidates {
			if tok.Cancelled() {
				return nil
			}
			if _, held := u.holdings[c.StockCode]; held {
				continue
			}
			if err := u.tryCandidate(ctx, orders, c.StockCode); err != nil {
				logger.ErrorWithErr(ctx, "Candidate evaluation failed", err, "symbol", c.StockCode)
			}
		}
		if err := u.refreshHoldings(ctx); err != nil {
			return err
		}
		if trial < u.cfg.MaxTrial && !tok.Sleep(u.cfg.Period) {
			return nil
		}
	}
	logger.Info(ctx, "Upper limit rounds exhausted", "max_trial", u.cfg.MaxTrial)
	return nil
}

func (u *UpperLimit) tryCandidate(ctx context.Context, orders runner.Orders, symbol string) error {
	q, err := u.Client.Quote(ctx, symbol)
	if err != nil {
		return err
	}
	now := u.Now()
	chart, err := u.Client.Chart(ctx, symbol, clock.StartOfDay(now).AddDate(0, 0, -chartLookbackDays), now)
	if err != nil {
		return err
	}
	if q == nil || chart == nil || len(chart.Bars) < 2 {
		logger.Debug(ctx, "Not enough data", "symbol", symbol)
		return nil
	}
	prev, _ := chart.Last(2)
	today, _ := chart.Last(1)

	ok, err := u.strategy.IsBuyable(ctx, interfaces.Evaluation{
		Wallet:   u.Wallet,
		Symbol:   symbol,
		Price:    q.Price,
		Previous: &prev,
		Today:    &today,
	})
	if err != nil || !ok {
		return err
	}
	target := u.strategy.TargetPrice(today)
	if q.Price.GreaterThan(target) {
		logger.Decision(ctx, symbol, string(types.ActionHold), "price above target", "price", q.Price.String(), "target", target.String())
		return nil
	}
	return orders.Buy(ctx, runner.BuyRequest{
		Symbol:   symbol,
		Price:    q.Price,
		Quantity: types.Quantity(u.cfg.MaxBuyAmount, target),
		Reason:   fmt.Sprintf("upper limit breakout, target %s", target.StringFixed(0)),
		Previous: &prev,
		Today:    &today,
	})
}

// MakeBuyOrder skips when the deposit cannot cover the order.
func (u *UpperLimit) MakeBuyOrder(ctx context.Context, req runner.BuyRequest) error {
	dep, err := u.Wallet.Deposit(ctx, u.Currency)
	if err != nil {
		return err
	}
	amount := req.Price.Mul(decimal.NewFromInt(req.Quantity))
	if dep.Amount.LessThan(amount) {
		logger.Info(ctx, "Buy skipped, deposit too low", "symbol", req.Symbol, "deposit", dep.Amount.String(), "amount", amount.String())
		return nil
	}
	return u.base.MakeBuyOrder(ctx, req)
}
