// Package krx holds the KRX equity traders driven by runner.Runner.
package krx

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/clock"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/notify"
	"krx-trader/internal/runner"
	"krx-trader/internal/types"
)

// Deps are the collaborators shared by every KRX trader.
type Deps struct {
	Client   *broker.Client
	Wallet   interfaces.Wallet
	Executor *runner.Executor
	Notifier interfaces.Notifier
	// Currency is the deposit currency checked before buys. Defaults to KRW.
	Currency types.Currency
	// Now defaults to clock.Now.
	Now func() time.Time
}

func (d *Deps) defaults() {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Currency == "" {
		d.Currency = types.KRW
	}
	if d.Now == nil {
		d.Now = clock.Now
	}
}

// base carries the holdings snapshot and the order plumbing common to the
// traders. It is only touched from the runner's goroutines, never
// concurrently.
type base struct {
	runner.Hooks
	Deps

	name       string
	holdings   map[string]types.Holding
	candidates []types.Candidate
}

func newBase(name string, deps Deps) base {
	deps.defaults()
	return base{name: name, Deps: deps, holdings: map[string]types.Holding{}}
}

func (b *base) Name() string { return b.name }

// refreshHoldings replaces the snapshot and logs what changed since the
// previous one.
func (b *base) refreshHoldings(ctx context.Context) error {
	updated, err := b.Wallet.Holdings(ctx)
	if err != nil {
		return fmt.Errorf("refresh holdings: %w", err)
	}
	for sym := range b.holdings {
		if _, ok := updated[sym]; !ok {
			logger.Info(ctx, "Stock sold", "symbol", sym)
		}
	}
	for sym, h := range updated {
		if _, ok := b.holdings[sym]; !ok {
			logger.Info(ctx, "Stock bought", "symbol", sym, "qty", h.Quantity, "avg_price", h.AvgPrice.String())
		}
	}
	b.holdings = updated
	return nil
}

func (b *base) held() map[string]struct{} {
	out := make(map[string]struct{}, len(b.holdings))
	for sym := range b.holdings {
		out[sym] = struct{}{}
	}
	return out
}

func (b *base) heldSymbols() []string {
	out := make([]string, 0, len(b.holdings))
	for sym := range b.holdings {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func candidateSymbols(cs []types.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.StockCode)
	}
	return out
}

func (b *base) logSnapshot(ctx context.Context) {
	logger.Debug(ctx, "Current holdings", "runner", b.name, "symbols", b.heldSymbols())
	logger.Debug(ctx, "Current candidates", "runner", b.name, "symbols", candidateSymbols(b.candidates))
}

// pushStatus sends the candidates and holdings to the notifier. Delivery
// failures are only logged.
func (b *base) pushStatus(ctx context.Context) {
	lines := []string{fmt.Sprintf("**%s** %s", b.name, b.Now().Format("2006-01-02 15:04"))}
	lines = append(lines, fmt.Sprintf("Candidates (%d):", len(b.candidates)))
	for _, c := range b.candidates {
		lines = append(lines, "- "+describeCandidate(c))
	}
	lines = append(lines, fmt.Sprintf("Holdings (%d):", len(b.holdings)))
	for _, sym := range b.heldSymbols() {
		h := b.holdings[sym]
		lines = append(lines, fmt.Sprintf("- %s %s x%d avg %s now %s (%s%%)",
			h.Symbol, h.Name, h.Quantity, h.AvgPrice.StringFixed(0), h.Price.StringFixed(0),
			h.ProfitRate().Mul(decimal.NewFromInt(100)).StringFixed(2)))
	}
	if err := notify.SendAll(ctx, b.Notifier, lines, notify.CharLimit); err != nil {
		logger.Warn(ctx, "Status notification not delivered", "runner", b.name, "error", err)
	}
}

func describeCandidate(c types.Candidate) string {
	s := c.StockCode
	if c.BuyPrice.IsPositive() {
		s += " buy " + c.BuyPrice.StringFixed(0)
	}
	if c.SupportPrice != nil && c.ResistancePrice != nil {
		s += fmt.Sprintf(" range %d-%d", *c.SupportPrice, *c.ResistancePrice)
	}
	return s
}

// OnShutdown cancels whatever is still pending on the account.
func (b *base) OnShutdown(ctx context.Context) error {
	n, err := b.Client.CancelAll(ctx)
	logger.Info(ctx, "Trader shutdown", "runner", b.name, "cancelled_orders", n)
	return err
}

func (b *base) OnBuyStart(ctx context.Context, symbol string) {
	logger.Debug(ctx, "Try buying symbol", "symbol", symbol)
}

func (b *base) OnSellStart(ctx context.Context, symbol string) {
	logger.Debug(ctx, "Try selling symbol", "symbol", symbol)
}

// MakeBuyOrder routes through the executor, which applies the strategy
// gate before the broker sees the order.
func (b *base) MakeBuyOrder(ctx context.Context, req runner.BuyRequest) error {
	_, err := b.Executor.Buy(ctx, req)
	return err
}

// MakeSellOrder sells the full held quantity.
func (b *base) MakeSellOrder(ctx context.Context, req runner.SellRequest) error {
	h, ok := b.holdings[req.Symbol]
	if !ok || h.Quantity <= 0 {
		logger.Debug(ctx, "Sell skipped, not held", "symbol", req.Symbol)
		return nil
	}
	_, err := b.Executor.Sell(ctx, req, h.Quantity)
	return err
}

// ExitConfig sets the take-profit and stop-loss rates against the average
// price. Zero disables the side.
type ExitConfig struct {
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// exitReason returns why h should be sold at price, or "" to hold.
func (e ExitConfig) exitReason(h types.Holding, price decimal.Decimal) string {
	if h.AvgPrice.Sign() <= 0 {
		return ""
	}
	one := decimal.NewFromInt(1)
	if e.TakeProfit.IsPositive() && price.GreaterThanOrEqual(h.AvgPrice.Mul(one.Add(e.TakeProfit))) {
		return "take profit"
	}
	if e.StopLoss.IsPositive() && price.LessThanOrEqual(h.AvgPrice.Mul(one.Sub(e.StopLoss))) {
		return "stop loss"
	}
	return ""
}

// evaluateExits sells holdings that crossed an exit threshold. A failure
// on one symbol is logged and does not stop the others. sold, when non-nil,
// records symbols already handled this session.
func (b *base) evaluateExits(ctx context.Context, tok *runner.Token, orders runner.Orders, exits ExitConfig, sold map[string]struct{}) {
	for _, sym := range b.heldSymbols() {
		if tok.Cancelled() {
			return
		}
		if _, done := sold[sym]; done {
			continue
		}
		h := b.holdings[sym]
		q, err := b.Client.Quote(ctx, sym)
		if err != nil {
			logger.ErrorWithErr(ctx, "Exit evaluation failed", err, "symbol", sym)
			continue
		}
		if q == nil {
			continue
		}
		reason := exits.exitReason(h, q.Price)
		logger.Decision(ctx, sym, exitAction(reason), exitOrHold(reason),
			"price", q.Price.String(),
			"avg_price", h.AvgPrice.String(),
			"take_profit", exits.TakeProfit.String(),
			"stop_loss", exits.StopLoss.String(),
		)
		if reason == "" {
			continue
		}
		if sold != nil {
			sold[sym] = struct{}{}
		}
		if err := orders.Sell(ctx, runner.SellRequest{Symbol: sym, Price: q.Price, Reason: reason}); err != nil {
			logger.ErrorWithErr(ctx, "Sell failed", err, "symbol", sym)
		}
	}
}

func exitAction(reason string) string {
	if reason == "" {
		return string(types.ActionHold)
	}
	return string(types.ActionSell)
}

func exitOrHold(reason string) string {
	if reason == "" {
		return "within exit band"
	}
	return reason
}
