package eod

import (
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/clock"
	"krx-trader/internal/tradelog"
)

func useTempDir(t *testing.T) {
	t.Helper()
	tradelog.SetDir(t.TempDir())
	t.Cleanup(func() { tradelog.SetDir("") })
}

func TestSummarizeDay(t *testing.T) {
	useTempDir(t)
	for _, e := range []tradelog.Entry{
		{Symbol: "005930", Side: "BUY", Qty: 10, Price: decimal.NewFromInt(70000)},
		{Symbol: "005930", Side: "BUY", Qty: 10, Price: decimal.NewFromInt(72000)},
		{Symbol: "005930", Side: "SELL", Qty: 5, Price: decimal.NewFromInt(75000)},
		{Symbol: "000660", Side: "BUY", Qty: 2, Price: decimal.NewFromInt(130000)},
	} {
		require.NoError(t, tradelog.Append(e))
	}
	s := &eodSummarizer{now: time.Now}

	path, err := s.SummarizeToday(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, "symbol", records[0][0])
	assert.Equal(t, []string{"000660", "1", "2", "130000.00", "0", "0.00", "0", "260000", "0"}, records[1])
	// 5 matched at (75000 - 71000)
	assert.Equal(t, []string{"005930", "3", "20", "71000.00", "5", "75000.00", "20000", "1420000", "375000"}, records[2])
	assert.Equal(t, "TOTAL", records[3][0])
	assert.Equal(t, "20000", records[3][6])
}

func TestSummarizeDayWithoutTrades(t *testing.T) {
	useTempDir(t)
	s := &eodSummarizer{now: time.Now}

	path, err := s.SummarizeDay(context.Background(), time.Date(2020, 1, 2, 10, 0, 0, 0, clock.KST))
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestShouldRunNow(t *testing.T) {
	useTempDir(t)
	before := time.Date(2024, 3, 5, 15, 39, 0, 0, clock.KST)
	after := time.Date(2024, 3, 5, 15, 41, 0, 0, clock.KST)

	run, _ := (&eodSummarizer{now: func() time.Time { return before }}).ShouldRunNow()
	assert.False(t, run)

	s := &eodSummarizer{now: func() time.Time { return after }}
	run, path := s.ShouldRunNow()
	assert.True(t, run)
	assert.Contains(t, path, "2024-03-05.csv")

	require.NoError(t, os.MkdirAll(tradelog.Dir()+"/eod", 0o755))
	require.NoError(t, os.WriteFile(path, []byte("symbol\n"), 0o644))
	run, _ = s.ShouldRunNow()
	assert.False(t, run)
}
