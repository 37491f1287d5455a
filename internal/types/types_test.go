package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestQuantity(t *testing.T) {
	tests := []struct {
		name   string
		budget int64
		price  int64
		want   int64
	}{
		{"exact", 100000, 10000, 10},
		{"floors", 100000, 30000, 3},
		{"budget below price", 1000, 50000, 1},
		{"zero budget", 0, 50000, 1},
		{"zero price", 100000, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quantity(decimal.NewFromInt(tt.budget), decimal.NewFromInt(tt.price))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChartLast(t *testing.T) {
	c := &Chart{Bars: []ChartBar{{Volume: 1}, {Volume: 2}, {Volume: 3}}}

	last, ok := c.Last(1)
	assert.True(t, ok)
	assert.Equal(t, int64(3), last.Volume)

	prev, ok := c.Last(2)
	assert.True(t, ok)
	assert.Equal(t, int64(2), prev.Volume)

	_, ok = c.Last(4)
	assert.False(t, ok)

	var nilChart *Chart
	_, ok = nilChart.Last(1)
	assert.False(t, ok)
}

func TestHoldingProfitRate(t *testing.T) {
	h := Holding{AvgPrice: decimal.NewFromInt(1000), Price: decimal.NewFromInt(1050)}
	assert.True(t, h.ProfitRate().Equal(decimal.RequireFromString("0.05")))

	assert.True(t, Holding{Price: decimal.NewFromInt(10)}.ProfitRate().IsZero())
}
