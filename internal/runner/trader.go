package runner

import (
	"context"

	"github.com/shopspring/decimal"

	"krx-trader/internal/types"
)

// BuyRequest asks a trader to place a buy. Previous and Today carry the
// daily bars the decision was based on, when there were any.
type BuyRequest struct {
	Symbol   string
	Price    decimal.Decimal
	Quantity int64
	Reason   string
	Previous *types.ChartBar
	Today    *types.ChartBar
}

type SellRequest struct {
	Symbol string
	Price  decimal.Decimal
	Reason string
}

// Orders is the order path handed to Monitor. It wraps placement in the
// trader's hooks.
type Orders interface {
	Buy(ctx context.Context, req BuyRequest) error
	Sell(ctx context.Context, req SellRequest) error
}

// Trader is one trading session's behaviour. The runner owns the lifecycle
// and calls these in order: OnStartup, Monitor, OnShutdown.
type Trader interface {
	Name() string
	OnStartup(ctx context.Context) error
	OnShutdown(ctx context.Context) error
	MakeBuyOrder(ctx context.Context, req BuyRequest) error
	MakeSellOrder(ctx context.Context, req SellRequest) error
	// Monitor runs one pass in periodic mode, or loops until tok is
	// cancelled in real-time mode. A returned error is fatal for the session.
	Monitor(ctx context.Context, tok *Token, orders Orders) error
}

// BuyHooks is implemented by traders that want callbacks around buys.
type BuyHooks interface {
	OnBuyStart(ctx context.Context, symbol string)
	OnBuyEnd(ctx context.Context, symbol string, err error)
}

type SellHooks interface {
	OnSellStart(ctx context.Context, symbol string)
	OnSellEnd(ctx context.Context, symbol string, err error)
}

// Hooks is a no-op BuyHooks and SellHooks for embedding.
type Hooks struct{}

func (Hooks) OnBuyStart(ctx context.Context, symbol string) {}
func (Hooks) OnBuyEnd(ctx context.Context, symbol string, err error) {}
func (Hooks) OnSellStart(ctx context.Context, symbol string) {}
func (Hooks) OnSellEnd(ctx context.Context, symbol string, err error) {}
