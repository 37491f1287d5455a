package tradelog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/types"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	d := t.TempDir()
	SetDir(d)
	t.Cleanup(func() { SetDir("") })
	return d
}

func readLines[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []T
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var v T
		require.NoError(t, json.Unmarshal(sc.Bytes(), &v), sc.Text())
		out = append(out, v)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestJournalTradeRoundTrip(t *testing.T) {
	useTempDir(t)
	j := Journal{Runner: "krx_trader"}
	ctx := context.Background()

	j.Trade(ctx, types.Order{ID: "0001", Symbol: "005930", Side: types.SideBuy, Quantity: 3, Price: decimal.NewFromInt(70000), Status: "ACCEPTED"}, "fibonacci entry")
	j.Trade(ctx, types.Order{ID: "0002", Symbol: "005930", Side: types.SideSell, Quantity: 3, Price: decimal.NewFromInt(73500), Status: "ACCEPTED"}, "")

	entries := readLines[Entry](t, TradesPath(time.Now()))
	require.Len(t, entries, 2)
	assert.Equal(t, "krx_trader", entries[0].Runner)
	assert.Equal(t, "BUY", entries[0].Side)
	assert.Equal(t, int64(3), entries[0].Qty)
	assert.True(t, entries[0].Price.Equal(decimal.NewFromInt(70000)))
	assert.Equal(t, "fibonacci entry", entries[0].Reason)
	assert.NotEmpty(t, entries[0].Time)
	assert.Equal(t, "0002", entries[1].OrderID)
}

func TestJournalDecision(t *testing.T) {
	useTempDir(t)
	Journal{Runner: "krx_trader_upper"}.Decision(context.Background(), "123456", types.ActionHold, "strategy rejected buy", decimal.NewFromInt(1360))

	entries := readLines[DecisionEntry](t, DecisionsPath(time.Now()))
	require.Len(t, entries, 1)
	assert.Equal(t, "HOLD", entries[0].Action)
	assert.Equal(t, "strategy rejected buy", entries[0].Reason)
}

func TestCompressOlder(t *testing.T) {
	d := useTempDir(t)
	old := filepath.Join(d, "trades", "2020-01-02.jsonl")
	fresh := TradesPath(time.Now())
	session := filepath.Join(d, "krx_trader", "2020-01-02.log")
	for _, p := range []string{old, fresh, session} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0o644))
	}
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(session, past, past))

	require.NoError(t, CompressOlder(7))

	assert.NoFileExists(t, old)
	assert.FileExists(t, old+".gz")
	assert.FileExists(t, session+".gz")
	assert.FileExists(t, fresh)
}

func TestCompressOlderDisabled(t *testing.T) {
	assert.NoError(t, CompressOlder(0))
}
