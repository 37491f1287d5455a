package interfaces

import (
	"context"

	"krx-trader/internal/types"
)

// Wallet is a read-only view over the brokerage account.
type Wallet interface {
	Holdings(ctx context.Context) (map[string]types.Holding, error)
	PendingOrders(ctx context.Context) ([]types.Order, error)
	Deposit(ctx context.Context, currency types.Currency) (types.Deposit, error)
}
