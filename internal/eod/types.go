package eod

import "github.com/shopspring/decimal"

// aggRow accumulates one symbol's fills for the day.
type aggRow struct {
	Symbol      string
	Orders      int
	BuyQty      int64
	BuyValue    decimal.Decimal
	SellQty     int64
	SellValue   decimal.Decimal
	RealizedPnL decimal.Decimal // matched quantity times (sell avg - buy avg)
}
