package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/interfaces"
	"krx-trader/internal/types"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type stubWallet struct {
	deposit decimal.Decimal
}

func (w stubWallet) Holdings(ctx context.Context) (map[string]types.Holding, error) {
	return map[string]types.Holding{}, nil
}

func (w stubWallet) PendingOrders(ctx context.Context) ([]types.Order, error) {
	return nil, nil
}

func (w stubWallet) Deposit(ctx context.Context, currency types.Currency) (types.Deposit, error) {
	return types.Deposit{Currency: currency, Amount: w.deposit}, nil
}

func TestBasicAlwaysEligible(t *testing.T) {
	ctx := context.Background()
	ok, err := Basic{}.IsBuyable(ctx, interfaces.Evaluation{Symbol: "005930"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Basic{}.IsSellable(ctx, interfaces.Evaluation{Symbol: "005930"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDepositGuard(t *testing.T) {
	ctx := context.Background()
	g := DepositGuard{}

	ok, err := g.IsBuyable(ctx, interfaces.Evaluation{Wallet: stubWallet{deposit: d(100000)}, Amount: d(99999)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsBuyable(ctx, interfaces.Evaluation{Wallet: stubWallet{deposit: d(100000)}, Amount: d(100000)})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = g.IsBuyable(ctx, interfaces.Evaluation{})
	assert.Error(t, err)
}

// breakoutBars returns a limit-up previous day and a qualifying today.
func breakoutBars() (types.ChartBar, types.ChartBar) {
	prev := types.ChartBar{Open: d(1000), Close: d(1300), High: d(1300), Low: d(990), Amount: d(1000000)}
	today := types.ChartBar{Open: d(1350), High: d(1420), Low: d(1340), Close: d(1400), Amount: d(1100000)}
	return prev, today
}

func TestUpperLimitBreakoutIsBuyable(t *testing.T) {
	s := NewUpperLimitBreakout(UpperLimitConfig{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(prev, today *types.ChartBar, price *decimal.Decimal)
		want   bool
	}{
		{"all checks pass", func(prev, today *types.ChartBar, price *decimal.Decimal) {}, true},
		{"previous body too small", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			prev.Close = d(1200)
			today.Open = d(1250)
		}, false},
		{"previous body exactly at threshold", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			prev.Close = d(1290) // 0.29 is not strictly greater
		}, false},
		{"amount below ratio", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			today.Amount = d(1099999)
		}, false},
		{"gap too small", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			today.Open = d(1312)
		}, false},
		{"gap at lower bound", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			today.Open = d(1313)
		}, true},
		{"gap at upper bound", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			today.Open = d(1430)
		}, true},
		{"gap too large", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			today.Open = d(1431)
		}, false},
		{"price below low", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			*price = d(1339)
		}, false},
		{"price at low", func(prev, today *types.ChartBar, price *decimal.Decimal) {
			*price = d(1340)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, today := breakoutBars()
			price := d(1360)
			tt.mutate(&prev, &today, &price)
			ok, err := s.IsBuyable(ctx, interfaces.Evaluation{Symbol: "123456", Price: price, Previous: &prev, Today: &today})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestUpperLimitBreakoutNeedsBars(t *testing.T) {
	s := NewUpperLimitBreakout(UpperLimitConfig{})
	_, err := s.IsBuyable(context.Background(), interfaces.Evaluation{Symbol: "123456"})
	assert.ErrorIs(t, err, ErrMissingBars)
}

func TestUpperLimitTargetPrice(t *testing.T) {
	s := NewUpperLimitBreakout(UpperLimitConfig{})
	assert.True(t, s.TargetPrice(types.ChartBar{Low: d(100), High: d(140)}).Equal(d(110)))
	assert.True(t, s.TargetPrice(types.ChartBar{Low: d(1340), High: d(1420)}).Equal(d(1360)))
	assert.True(t, s.TargetPrice(types.ChartBar{Low: d(100), High: d(103)}).Equal(d(100)))
}

func TestUpperLimitCustomThresholds(t *testing.T) {
	s := NewUpperLimitBreakout(UpperLimitConfig{MinPrevBody: decimal.RequireFromString("0.5")})
	assert.True(t, s.Config().MinPrevBody.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, s.Config().MaxGap.Equal(decimal.RequireFromString("1.1")))

	prev, today := breakoutBars()
	ok, err := s.IsBuyable(context.Background(), interfaces.Evaluation{Price: d(1360), Previous: &prev, Today: &today})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(UpperLimitConfig{}, types.KRW)
	assert.Equal(t, []string{NameBasic, NameDepositGuard, NameUpperLimitBreakout}, r.Names())

	s, err := r.Get(NameUpperLimitBreakout)
	require.NoError(t, err)
	_, ok := s.(interfaces.TargetPricer)
	assert.True(t, ok)

	_, err = r.Get("momentum")
	assert.Error(t, err)
}
