package strategy

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/ta"
	"krx-trader/internal/types"
)

var ErrMissingBars = errors.New("previous and today bars are required")

// UpperLimitConfig holds the breakout thresholds.
type UpperLimitConfig struct {
	// MinPrevBody is the minimum (close-open)/open of the limit-up day.
	MinPrevBody decimal.Decimal
	// MinAmountRatio is today's traded value over the previous day's.
	MinAmountRatio decimal.Decimal
	// MinGap and MaxGap bound today's open against the previous close.
	MinGap decimal.Decimal
	MaxGap decimal.Decimal
}

func DefaultUpperLimitConfig() UpperLimitConfig {
	return UpperLimitConfig{
		MinPrevBody:    decimal.RequireFromString("0.29"),
		MinAmountRatio: decimal.RequireFromString("1.1"),
		MinGap:         decimal.RequireFromString("1.01"),
		MaxGap:         decimal.RequireFromString("1.1"),
	}
}

// UpperLimitBreakout buys the day after a limit-up close when the follow
// through is confirmed by volume and a modest gap up.
type UpperLimitBreakout struct {
	cfg UpperLimitConfig
}

var (
	_ interfaces.Strategy     = (*UpperLimitBreakout)(nil)
	_ interfaces.TargetPricer = (*UpperLimitBreakout)(nil)
)

// NewUpperLimitBreakout fills zero thresholds with the defaults.
func NewUpperLimitBreakout(cfg UpperLimitConfig) *UpperLimitBreakout {
	def := DefaultUpperLimitConfig()
	if cfg.MinPrevBody.IsZero() {
		cfg.MinPrevBody = def.MinPrevBody
	}
	if cfg.MinAmountRatio.IsZero() {
		cfg.MinAmountRatio = def.MinAmountRatio
	}
	if cfg.MinGap.IsZero() {
		cfg.MinGap = def.MinGap
	}
	if cfg.MaxGap.IsZero() {
		cfg.MaxGap = def.MaxGap
	}
	return &UpperLimitBreakout{cfg: cfg}
}

func (s *UpperLimitBreakout) Name() string { return NameUpperLimitBreakout }

func (s *UpperLimitBreakout) Config() UpperLimitConfig { return s.cfg }

// IsBuyable requires every check to pass. Each check is logged with the
// value it compared.
func (s *UpperLimitBreakout) IsBuyable(ctx context.Context, ev interfaces.Evaluation) (bool, error) {
	if ev.Previous == nil || ev.Today == nil {
		return false, ErrMissingBars
	}
	prev, today := *ev.Previous, *ev.Today

	body := ta.ChangeRatio(prev.Open, prev.Close)
	bodyOK := prev.Open.Sign() > 0 && body.GreaterThan(s.cfg.MinPrevBody)

	minAmount := prev.Amount.Mul(s.cfg.MinAmountRatio)
	amountOK := today.Amount.GreaterThanOrEqual(minAmount)

	gapLow := prev.Close.Mul(s.cfg.MinGap)
	gapHigh := prev.Close.Mul(s.cfg.MaxGap)
	gapOK := today.Open.GreaterThanOrEqual(gapLow) && today.Open.LessThanOrEqual(gapHigh)

	priceOK := ev.Price.GreaterThanOrEqual(today.Low)

	logger.Debug(ctx, "Upper limit breakout check",
		"symbol", ev.Symbol,
		"prev_body", body.StringFixed(4),
		"min_prev_body", s.cfg.MinPrevBody.String(),
		"prev_body_ok", bodyOK,
		"amount", today.Amount.String(),
		"min_amount", minAmount.String(),
		"amount_ok", amountOK,
		"open", today.Open.String(),
		"gap_low", gapLow.String(),
		"gap_high", gapHigh.String(),
		"gap_ok", gapOK,
		"price", ev.Price.String(),
		"low", today.Low.String(),
		"price_ok", priceOK,
	)
	return bodyOK && amountOK && gapOK && priceOK, nil
}

func (s *UpperLimitBreakout) IsSellable(ctx context.Context, ev interfaces.Evaluation) (bool, error) {
	return true, nil
}

// TargetPrice is the quarter retracement of today's range above the low.
func (s *UpperLimitBreakout) TargetPrice(today types.ChartBar) decimal.Decimal {
	return ta.Retracement(today.Low, today.High)
}
