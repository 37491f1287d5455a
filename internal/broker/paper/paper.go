// Package paper simulates order placement on top of a live data feed for
// DRY_RUN mode.
package paper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

// Broker forwards lookups and account reads to the wrapped API and keeps
// orders in memory. Pending orders and cancellation only ever see the
// simulated book, so a dry run never touches real open orders.
type Broker struct {
	api interfaces.BrokerAPI

	mu      sync.Mutex
	pending []types.Order
}

var _ interfaces.BrokerAPI = (*Broker)(nil)

func New(api interfaces.BrokerAPI) *Broker {
	return &Broker{api: api}
}

func (b *Broker) Account(ctx context.Context) (types.Account, error) {
	return b.api.Account(ctx)
}

func (b *Broker) Stock(ctx context.Context, symbol string) (types.Stock, error) {
	return b.api.Stock(ctx, symbol)
}

func (b *Broker) Quote(ctx context.Context, stock types.Stock) (types.Quote, error) {
	return b.api.Quote(ctx, stock)
}

func (b *Broker) Chart(ctx context.Context, stock types.Stock, start, end time.Time) (types.Chart, error) {
	return b.api.Chart(ctx, stock, start, end)
}

func (b *Broker) Balance(ctx context.Context, account types.Account) (types.Balance, error) {
	return b.api.Balance(ctx, account)
}

func (b *Broker) Buy(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return b.simulate(ctx, types.SideBuy, stock, qty, price), nil
}

func (b *Broker) Sell(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return b.simulate(ctx, types.SideSell, stock, qty, price), nil
}

func (b *Broker) simulate(ctx context.Context, side types.Side, stock types.Stock, qty int64, price decimal.Decimal) types.Order {
	o := types.Order{
		ID:       "SIM-" + uuid.NewString(),
		Symbol:   stock.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Status:   "SIMULATED",
		PlacedAt: time.Now(),
	}
	b.mu.Lock()
	b.pending = append(b.pending, o)
	b.mu.Unlock()

	logger.Info(ctx, "Simulated order placed",
		"symbol", stock.Symbol,
		"side", string(side),
		"qty", qty,
		"price", price.String(),
		"order_id", o.ID,
	)
	return o
}

func (b *Broker) PendingOrders(ctx context.Context, account types.Account) ([]types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Order(nil), b.pending...), nil
}

func (b *Broker) Cancel(ctx context.Context, account types.Account, order types.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.pending {
		if o.ID == order.ID {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return nil
		}
	}
	return broker.ErrNotFound
}
