package krx

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/runner"
	"krx-trader/internal/ta"
	"krx-trader/internal/types"
)

const NamePeriodic = "krx_periodic"

type PeriodicConfig struct {
	MaxStock     int
	MaxBuyAmount decimal.Decimal
	Exits        ExitConfig
}

// Periodic makes one pass per session: exits for what is held, then entries
// at the first Fibonacci level of each candidate's support/resistance range.
type Periodic struct {
	base
	source interfaces.CandidateSource
	cfg    PeriodicConfig
}

var _ runner.Trader = (*Periodic)(nil)

func NewPeriodic(deps Deps, source interfaces.CandidateSource, cfg PeriodicConfig) *Periodic {
	return &Periodic{base: newBase(NamePeriodic, deps), source: source, cfg: cfg}
}

func (p *Periodic) OnStartup(ctx context.Context) error {
	if err := p.refreshHoldings(ctx); err != nil {
		return err
	}
	cs, err := p.source.FetchToday(ctx, p.held())
	if err != nil {
		return fmt.Errorf("fetch candidates: %w", err)
	}
	p.candidates = cs
	p.logSnapshot(ctx)
	p.pushStatus(ctx)
	return nil
}

func (p *Periodic) Monitor(ctx context.Context, tok *runner.Token, orders runner.Orders) error {
	p.evaluateExits(ctx, tok, orders, p.cfg.Exits, nil)

	slots := p.cfg.MaxStock - len(p.holdings)
	if slots <= 0 {
		logger.Info(ctx, "No free slots", "held", len(p.holdings), "max_stock", p.cfg.MaxStock)
		return nil
	}
	for _, c := range p.candidates {
		if slots == 0 || tok.Cancelled() {
			break
		}
		if c.SupportPrice == nil || c.ResistancePrice == nil {
			logger.Debug(ctx, "Candidate has no range", "symbol", c.StockCode)
			continue
		}
		levels, err := ta.Fibonacci(*c.SupportPrice, *c.ResistancePrice)
		if err != nil {
			logger.Warn(ctx, "Candidate range invalid", "symbol", c.StockCode, "error", err)
			continue
		}
		q, err := p.Client.Quote(ctx, c.StockCode)
		if err != nil {
			logger.ErrorWithErr(ctx, "Quote failed", err, "symbol", c.StockCode)
			continue
		}
		if q == nil {
			continue
		}
		entry := decimal.NewFromInt(levels[0])
		if q.Price.GreaterThan(entry) {
			logger.Debug(ctx, "Price above entry level", "symbol", c.StockCode, "price", q.Price.String(), "level", entry.String())
			continue
		}
		price := decimal.Min(q.Price, entry)
		err = orders.Buy(ctx, runner.BuyRequest{
			Symbol:   c.StockCode,
			Price:    price,
			Quantity: types.Quantity(p.cfg.MaxBuyAmount, q.Price),
			Reason:   fmt.Sprintf("price at or below fibonacci level %d", levels[0]),
		})
		if err != nil {
			logger.ErrorWithErr(ctx, "Buy failed", err, "symbol", c.StockCode)
			continue
		}
		slots--
	}
	return nil
}
