package strategy

import (
	"context"
	"fmt"
	"sort"

	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

const (
	NameBasic              = "basic"
	NameDepositGuard       = "deposit_guard"
	NameUpperLimitBreakout = "upper_limit_breakout"
)

// Basic accepts every buy and sell.
type Basic struct{}

var _ interfaces.Strategy = Basic{}

func (Basic) Name() string { return NameBasic }

func (Basic) IsBuyable(ctx context.Context, ev interfaces.Evaluation) (bool, error) {
	return true, nil
}

func (Basic) IsSellable(ctx context.Context, ev interfaces.Evaluation) (bool, error) {
	return true, nil
}

// DepositGuard only buys when the wallet holds more cash than the order
// amount. Sells are always allowed.
type DepositGuard struct {
	Currency types.Currency
}

var _ interfaces.Strategy = DepositGuard{}

func (DepositGuard) Name() string { return NameDepositGuard }

func (g DepositGuard) IsBuyable(ctx context.Context, ev interfaces.Evaluation) (bool, error) {
	if ev.Wallet == nil {
		return false, fmt.Errorf("deposit guard %s: no wallet", ev.Symbol)
	}
	currency := g.Currency
	if currency == "" {
		currency = types.KRW
	}
	d, err := ev.Wallet.Deposit(ctx, currency)
	if err != nil {
		return false, fmt.Errorf("deposit guard %s: %w", ev.Symbol, err)
	}
	ok := d.Amount.GreaterThan(ev.Amount)
	if !ok {
		logger.Debug(ctx, "Deposit below order amount",
			"symbol", ev.Symbol,
			"deposit", d.Amount.String(),
			"amount", ev.Amount.String(),
		)
	}
	return ok, nil
}

func (DepositGuard) IsSellable(ctx context.Context, ev interfaces.Evaluation) (bool, error) {
	return true, nil
}

// Registry resolves strategies by configured name.
type Registry struct {
	byName map[string]interfaces.Strategy
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry(upper UpperLimitConfig, currency types.Currency) *Registry {
	r := &Registry{byName: map[string]interfaces.Strategy{}}
	r.Register(Basic{})
	r.Register(DepositGuard{Currency: currency})
	r.Register(NewUpperLimitBreakout(upper))
	return r
}

func (r *Registry) Register(s interfaces.Strategy) {
	r.byName[s.Name()] = s
}

func (r *Registry) Get(name string) (interfaces.Strategy, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, r.Names())
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
