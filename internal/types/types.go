package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	KRW Currency = "KRW"
	USD Currency = "USD"
	INR Currency = "INR"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Candidate is one advisory row for a trading date. Support and resistance
// are optional; the advisory pipeline only fills them when it found a range.
type Candidate struct {
	ID                      int64
	StockCode               string
	Date                    string
	BuyPrice                decimal.Decimal
	TargetPrice             decimal.Decimal
	StopPrice               decimal.Decimal
	SupportPrice            *int64
	ResistancePrice         *int64
	GrowthScore             int
	FinancialStabilityScore int
	ValuationAttractiveness string
	TechnicalSignal         string
}

// Quality is the ordering key used when candidates are ranked.
func (c Candidate) Quality() int { return c.GrowthScore + c.FinancialStabilityScore }

type Holding struct {
	Symbol   string
	Name     string
	Quantity int64
	AvgPrice decimal.Decimal
	Price    decimal.Decimal
	Currency Currency
}

// ProfitRate returns (price-avg)/avg, zero when the average is unknown.
func (h Holding) ProfitRate() decimal.Decimal {
	if h.AvgPrice.Sign() <= 0 {
		return decimal.Zero
	}
	return h.Price.Sub(h.AvgPrice).Div(h.AvgPrice)
}

type Quote struct {
	Symbol     string
	Market     string
	Sector     string
	Price      decimal.Decimal
	Volume     int64
	Amount     decimal.Decimal
	Rate       decimal.Decimal // percent change against the previous close
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	PrevPrice  decimal.Decimal
	HighLimit  decimal.Decimal
	LowLimit   decimal.Decimal
	PER        decimal.Decimal
	PBR        decimal.Decimal
	EPS        decimal.Decimal
	BPS        decimal.Decimal
	Risk       string
	Halt       bool
	Overbought bool
	Time       time.Time
}

type ChartBar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
	Amount decimal.Decimal
	Change decimal.Decimal
}

// Chart holds bars oldest first.
type Chart struct {
	Symbol string
	Bars   []ChartBar
}

// Last returns the bar n positions from the end (Last(1) is the most recent).
func (c *Chart) Last(n int) (ChartBar, bool) {
	if c == nil || n <= 0 || n > len(c.Bars) {
		return ChartBar{}, false
	}
	return c.Bars[len(c.Bars)-n], true
}

type Stock struct {
	Symbol string
	Name   string
	Market string
	// InstrumentToken is the broker's numeric instrument id, zero when unused.
	InstrumentToken int
}

type Account struct {
	Number      string
	ProductCode string
}

type Order struct {
	ID       string
	Branch   string
	Symbol   string
	Side     Side
	Quantity int64
	Price    decimal.Decimal
	Status   string
	PlacedAt time.Time
}

type Deposit struct {
	Currency Currency
	Amount   decimal.Decimal
}

type Balance struct {
	Stocks   []Holding
	Deposits map[Currency]Deposit
}

type TradeSignal struct {
	Action   Action
	Symbol   string
	Price    decimal.Decimal
	Quantity int64
}

// Quantity returns max(1, floor(budget/price)).
func Quantity(budget, price decimal.Decimal) int64 {
	if price.Sign() <= 0 {
		return 1
	}
	q := budget.Div(price).Floor().IntPart()
	if q < 1 {
		return 1
	}
	return q
}
