package eod

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/clock"
	"krx-trader/internal/tradelog"
	"krx-trader/internal/types"
)

// Summary runs after the 15:30 KST close once the last fills are journaled.
const (
	cutoffHour   = 15
	cutoffMinute = 40
)

type eodSummarizer struct {
	now func() time.Time
}

func eodCSVPath(t time.Time) string {
	return filepath.Join(tradelog.Dir(), "eod", clock.Date(t)+".csv")
}

// SummarizeDay aggregates the day's trade journal into a per-symbol CSV.
// It returns an empty path when nothing traded.
func (s *eodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	inPath := tradelog.TradesPath(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e tradelog.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		row := aggs[e.Symbol]
		if row == nil {
			row = &aggRow{Symbol: e.Symbol}
			aggs[e.Symbol] = row
		}
		row.Orders++
		value := e.Price.Mul(decimal.NewFromInt(e.Qty))
		switch types.Side(e.Side) {
		case types.SideBuy:
			row.BuyQty += e.Qty
			row.BuyValue = row.BuyValue.Add(value)
		case types.SideSell:
			row.SellQty += e.Qty
			row.SellValue = row.SellValue.Add(value)
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "orders", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var totalBuy, totalSell, totalPnL decimal.Decimal
	for _, k := range keys {
		r := aggs[k]
		buyAvg := average(r.BuyValue, r.BuyQty)
		sellAvg := average(r.SellValue, r.SellQty)
		matched := min(r.BuyQty, r.SellQty)
		r.RealizedPnL = sellAvg.Sub(buyAvg).Mul(decimal.NewFromInt(matched))
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Orders),
			strconv.FormatInt(r.BuyQty, 10),
			buyAvg.StringFixed(2),
			strconv.FormatInt(r.SellQty, 10),
			sellAvg.StringFixed(2),
			r.RealizedPnL.StringFixed(0),
			r.BuyValue.StringFixed(0),
			r.SellValue.StringFixed(0),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy = totalBuy.Add(r.BuyValue)
		totalSell = totalSell.Add(r.SellValue)
		totalPnL = totalPnL.Add(r.RealizedPnL)
	}
	if err := w.Write([]string{"TOTAL", "", "", "", "", "", totalPnL.StringFixed(0), totalBuy.StringFixed(0), totalSell.StringFixed(0)}); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}

// ShouldRunNow reports whether the cutoff has passed and today's CSV is
// still missing.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now().In(clock.KST)
	outPath := eodCSVPath(now)
	if now.After(clock.At(now, cutoffHour, cutoffMinute)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}

func average(value decimal.Decimal, qty int64) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return value.Div(decimal.NewFromInt(qty))
}
