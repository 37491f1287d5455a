package brokerobs

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/trace"
	"krx-trader/internal/types"
)

// observableBroker wraps a BrokerAPI with observability (logging & tracing)
type observableBroker struct {
	api interfaces.BrokerAPI
}

// Compile-time interface check
var _ interfaces.BrokerAPI = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(api interfaces.BrokerAPI) interfaces.BrokerAPI {
	return &observableBroker{api: api}
}

// logFailure keeps expected outcomes (not found, market closed) out of the
// error level.
func logFailure(ctx context.Context, msg string, err error, args ...any) {
	if errors.Is(err, broker.ErrNotFound) || errors.Is(err, broker.ErrMarketClosed) {
		logger.DebugSkip(ctx, 2, msg, append([]any{"reason", err.Error()}, args...)...)
		return
	}
	logger.ErrorWithErrSkip(ctx, 2, msg, err, args...)
}

func (ob *observableBroker) Account(ctx context.Context) (types.Account, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Account")
	defer span.End()

	acc, err := ob.api.Account(ctx)
	if err != nil {
		logFailure(ctx, "Failed to fetch account", err)
		return acc, err
	}
	return acc, nil
}

func (ob *observableBroker) Stock(ctx context.Context, symbol string) (types.Stock, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Stock", trace.Symbol(symbol))
	defer span.End()

	logger.DebugSkip(ctx, 1, "Resolving stock", "symbol", symbol)

	s, err := ob.api.Stock(ctx, symbol)
	if err != nil {
		logFailure(ctx, "Failed to resolve stock", err, "symbol", symbol)
		return s, err
	}
	return s, nil
}

func (ob *observableBroker) Quote(ctx context.Context, stock types.Stock) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Quote", trace.Symbol(stock.Symbol))
	defer span.End()

	q, err := ob.api.Quote(ctx, stock)
	if err != nil {
		logFailure(ctx, "Failed to fetch quote", err, "symbol", stock.Symbol)
		return q, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched", "symbol", stock.Symbol, "price", q.Price.String(), "rate", q.Rate.String())
	return q, nil
}

func (ob *observableBroker) Chart(ctx context.Context, stock types.Stock, start, end time.Time) (types.Chart, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Chart", trace.Symbol(stock.Symbol))
	defer span.End()

	c, err := ob.api.Chart(ctx, stock, start, end)
	if err != nil {
		logFailure(ctx, "Failed to fetch chart", err, "symbol", stock.Symbol)
		return c, err
	}

	logger.DebugSkip(ctx, 1, "Chart fetched", "symbol", stock.Symbol, "bars", len(c.Bars))
	return c, nil
}

func (ob *observableBroker) Buy(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return ob.place(ctx, "broker.Buy", types.SideBuy, account, stock, qty, price)
}

func (ob *observableBroker) Sell(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return ob.place(ctx, "broker.Sell", types.SideSell, account, stock, qty, price)
}

func (ob *observableBroker) place(ctx context.Context, spanName string, side types.Side, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	ctx, span := trace.StartSpan(ctx, spanName, trace.Order(stock.Symbol, string(side)))
	defer span.End()

	logger.InfoSkip(ctx, 2, "Placing order",
		"symbol", stock.Symbol,
		"side", string(side),
		"qty", qty,
		"price", price.String(),
	)

	var (
		o   types.Order
		err error
	)
	if side == types.SideBuy {
		o, err = ob.api.Buy(ctx, account, stock, qty, price)
	} else {
		o, err = ob.api.Sell(ctx, account, stock, qty, price)
	}
	if err != nil {
		logFailure(ctx, "Failed to place order", err,
			"symbol", stock.Symbol,
			"side", string(side),
			"qty", qty,
		)
		return o, err
	}

	logger.InfoSkip(ctx, 2, "Order placed successfully",
		"symbol", stock.Symbol,
		"order_id", o.ID,
		"status", o.Status,
	)
	return o, nil
}

func (ob *observableBroker) Balance(ctx context.Context, account types.Account) (types.Balance, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Balance")
	defer span.End()

	b, err := ob.api.Balance(ctx, account)
	if err != nil {
		logFailure(ctx, "Failed to fetch balance", err)
		return b, err
	}

	logger.DebugSkip(ctx, 1, "Balance fetched", "stocks", len(b.Stocks))
	return b, nil
}

func (ob *observableBroker) PendingOrders(ctx context.Context, account types.Account) ([]types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PendingOrders")
	defer span.End()

	orders, err := ob.api.PendingOrders(ctx, account)
	if err != nil {
		logFailure(ctx, "Failed to fetch pending orders", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Pending orders fetched", "count", len(orders))
	return orders, nil
}

func (ob *observableBroker) Cancel(ctx context.Context, account types.Account, order types.Order) error {
	ctx, span := trace.StartSpan(ctx, "broker.Cancel", trace.Order(order.Symbol, string(order.Side)))
	defer span.End()

	logger.InfoSkip(ctx, 1, "Cancelling order", "order_id", order.ID, "symbol", order.Symbol)

	if err := ob.api.Cancel(ctx, account, order); err != nil {
		logFailure(ctx, "Failed to cancel order", err, "order_id", order.ID)
		return err
	}
	return nil
}
