package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/broker"
	"krx-trader/internal/broker/brokertest"
	"krx-trader/internal/types"
)

func TestHoldingsAreFreshPerCall(t *testing.T) {
	api := brokertest.New()
	api.SetHoldings(types.Holding{Symbol: "005930", Quantity: 10})
	w := New(broker.NewClient(api, broker.Options{}))
	ctx := context.Background()

	first, err := w.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first["005930"].Quantity)

	api.SetHoldings(types.Holding{Symbol: "000660", Quantity: 3})
	second, err := w.Holdings(ctx)
	require.NoError(t, err)
	assert.NotContains(t, second, "005930")
	assert.Equal(t, int64(3), second["000660"].Quantity)
	assert.Equal(t, 2, api.CallCount("balance"))
}

func TestDeposit(t *testing.T) {
	api := brokertest.New()
	api.SetDeposit(types.KRW, 500000)
	w := New(broker.NewClient(api, broker.Options{}))

	d, err := w.Deposit(context.Background(), types.KRW)
	require.NoError(t, err)
	assert.True(t, d.Amount.Equal(decimal.NewFromInt(500000)))

	usd, err := w.Deposit(context.Background(), types.USD)
	require.NoError(t, err)
	assert.True(t, usd.Amount.IsZero())
	assert.Equal(t, types.USD, usd.Currency)
}

func TestPendingOrders(t *testing.T) {
	api := brokertest.New()
	api.SetPending(types.Order{ID: "1", Symbol: "005930", Side: types.SideBuy})
	w := New(broker.NewClient(api, broker.Options{}))

	orders, err := w.PendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "1", orders[0].ID)
}
