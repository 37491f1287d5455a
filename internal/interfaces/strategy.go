package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"krx-trader/internal/types"
)

// Evaluation is the input to a buy or sell eligibility check.
type Evaluation struct {
	Wallet Wallet
	Symbol string
	Price  decimal.Decimal
	// Amount is the order value, price times quantity.
	Amount   decimal.Decimal
	Previous *types.ChartBar
	Today    *types.ChartBar
}

type Strategy interface {
	Name() string
	IsBuyable(ctx context.Context, ev Evaluation) (bool, error)
	IsSellable(ctx context.Context, ev Evaluation) (bool, error)
}

// TargetPricer is implemented by strategies that derive an entry price from
// the current bar.
type TargetPricer interface {
	TargetPrice(today types.ChartBar) decimal.Decimal
}
