package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/types"
)

// Wallet reads account state through the broker client. Every call goes to
// the brokerage; nothing is cached between calls.
type Wallet struct {
	client *broker.Client
}

var _ interfaces.Wallet = (*Wallet)(nil)

func New(client *broker.Client) *Wallet {
	return &Wallet{client: client}
}

// Holdings returns positions keyed by symbol, built fresh from the balance.
func (w *Wallet) Holdings(ctx context.Context) (map[string]types.Holding, error) {
	bal, err := w.client.Balance(ctx)
	if err != nil {
		return nil, err
	}
	holdings := make(map[string]types.Holding, len(bal.Stocks))
	for _, h := range bal.Stocks {
		holdings[h.Symbol] = h
	}
	return holdings, nil
}

func (w *Wallet) PendingOrders(ctx context.Context) ([]types.Order, error) {
	return w.client.PendingOrders(ctx)
}

// Deposit returns the cash available in currency, zero when the account
// holds none.
func (w *Wallet) Deposit(ctx context.Context, currency types.Currency) (types.Deposit, error) {
	bal, err := w.client.Balance(ctx)
	if err != nil {
		return types.Deposit{}, err
	}
	if d, ok := bal.Deposits[currency]; ok {
		return d, nil
	}
	return types.Deposit{Currency: currency, Amount: decimal.Zero}, nil
}
