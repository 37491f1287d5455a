package runner

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

// Journal persists placed orders and gate decisions.
type Journal interface {
	Trade(ctx context.Context, o types.Order, reason string)
	Decision(ctx context.Context, symbol string, action types.Action, reason string, price decimal.Decimal)
}

type nopJournal struct{}

func (nopJournal) Trade(ctx context.Context, o types.Order, reason string) {}
func (nopJournal) Decision(ctx context.Context, symbol string, action types.Action, reason string, price decimal.Decimal) {}

// Executor is the single order path shared by traders: the strategy gate
// first, then the broker, then the journal.
type Executor struct {
	client   *broker.Client
	wallet   interfaces.Wallet
	strategy interfaces.Strategy
	journal  Journal
}

func NewExecutor(client *broker.Client, wallet interfaces.Wallet, strategy interfaces.Strategy, journal Journal) *Executor {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Executor{client: client, wallet: wallet, strategy: strategy, journal: journal}
}

func (e *Executor) Strategy() interfaces.Strategy { return e.strategy }

// Buy places req when the strategy allows it. A nil order with nil error
// means nothing was sent: the gate said no, the symbol is unknown or the
// market is closed.
func (e *Executor) Buy(ctx context.Context, req BuyRequest) (*types.Order, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("buy %s: quantity %d", req.Symbol, req.Quantity)
	}
	amount := req.Price.Mul(decimal.NewFromInt(req.Quantity))
	ok, err := e.strategy.IsBuyable(ctx, interfaces.Evaluation{
		Wallet:   e.wallet,
		Symbol:   req.Symbol,
		Price:    req.Price,
		Amount:   amount,
		Previous: req.Previous,
		Today:    req.Today,
	})
	if err != nil {
		return nil, fmt.Errorf("buy %s: %s gate: %w", req.Symbol, e.strategy.Name(), err)
	}
	if !ok {
		reason := fmt.Sprintf("%s rejected buy", e.strategy.Name())
		logger.Decision(ctx, req.Symbol, string(types.ActionHold), reason, "price", req.Price.String(), "amount", amount.String())
		e.journal.Decision(ctx, req.Symbol, types.ActionHold, reason, req.Price)
		return nil, nil
	}

	stock, err := e.client.Stock(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		logger.Debug(ctx, "Buy skipped, unknown symbol", "symbol", req.Symbol)
		return nil, nil
	}

	logger.Decision(ctx, req.Symbol, string(types.ActionBuy), req.Reason, "price", req.Price.String(), "qty", req.Quantity)
	order, err := e.client.Buy(ctx, *stock, req.Quantity, req.Price)
	if err != nil || order == nil {
		return nil, err
	}
	logger.Trade(ctx, order.Symbol, string(order.Side), order.Quantity, order.Price.String(), order.ID, "reason", req.Reason)
	e.journal.Trade(ctx, *order, req.Reason)
	return order, nil
}

// Sell places a limit sell of qty when the strategy allows it, with the
// same nil-order semantics as Buy.
func (e *Executor) Sell(ctx context.Context, req SellRequest, qty int64) (*types.Order, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("sell %s: quantity %d", req.Symbol, qty)
	}
	ok, err := e.strategy.IsSellable(ctx, interfaces.Evaluation{
		Wallet: e.wallet,
		Symbol: req.Symbol,
		Price:  req.Price,
		Amount: req.Price.Mul(decimal.NewFromInt(qty)),
	})
	if err != nil {
		return nil, fmt.Errorf("sell %s: %s gate: %w", req.Symbol, e.strategy.Name(), err)
	}
	if !ok {
		reason := fmt.Sprintf("%s rejected sell", e.strategy.Name())
		logger.Decision(ctx, req.Symbol, string(types.ActionHold), reason, "price", req.Price.String())
		e.journal.Decision(ctx, req.Symbol, types.ActionHold, reason, req.Price)
		return nil, nil
	}

	stock, err := e.client.Stock(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		logger.Debug(ctx, "Sell skipped, unknown symbol", "symbol", req.Symbol)
		return nil, nil
	}

	logger.Decision(ctx, req.Symbol, string(types.ActionSell), req.Reason, "price", req.Price.String(), "qty", qty)
	order, err := e.client.Sell(ctx, *stock, qty, req.Price)
	if err != nil || order == nil {
		return nil, err
	}
	logger.Trade(ctx, order.Symbol, string(order.Side), order.Quantity, order.Price.String(), order.ID, "reason", req.Reason)
	e.journal.Trade(ctx, *order, req.Reason)
	return order, nil
}
