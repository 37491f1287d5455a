package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/types"
)

// BrokerAPI is the raw brokerage boundary. Implementations report a missing
// instrument with broker.ErrNotFound, a closed market with
// broker.ErrMarketClosed and network trouble with *broker.ConnectionError.
// Everything else is treated as fatal by callers.
type BrokerAPI interface {
	Account(ctx context.Context) (types.Account, error)
	Stock(ctx context.Context, symbol string) (types.Stock, error)
	Quote(ctx context.Context, stock types.Stock) (types.Quote, error)
	Chart(ctx context.Context, stock types.Stock, start, end time.Time) (types.Chart, error)
	Buy(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error)
	Sell(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error)
	Balance(ctx context.Context, account types.Account) (types.Balance, error)
	PendingOrders(ctx context.Context, account types.Account) ([]types.Order, error)
	Cancel(ctx context.Context, account types.Account, order types.Order) error
}
