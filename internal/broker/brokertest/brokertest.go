// Package brokertest provides a scripted in-memory brokerage for tests.
package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/broker"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/types"
)

// API is a fake interfaces.BrokerAPI. Unknown symbols yield
// broker.ErrNotFound. Errors queued with FailNext are returned before the
// normal result, one per call.
type API struct {
	mu sync.Mutex

	account      types.Account
	stocks       map[string]types.Stock
	quotes       map[string]types.Quote
	charts       map[string]types.Chart
	holdings     []types.Holding
	deposits     map[types.Currency]types.Deposit
	pending      []types.Order
	placed       []types.Order
	cancelled    []types.Order
	failures     map[string][]error
	calls        []string
	marketClosed bool
	seq          int

	// OnCall, when set, runs at the start of every call with the op name.
	OnCall func(op string)
}

var _ interfaces.BrokerAPI = (*API)(nil)

func New() *API {
	return &API{
		account:  types.Account{Number: "50000000", ProductCode: "01"},
		stocks:   map[string]types.Stock{},
		quotes:   map[string]types.Quote{},
		charts:   map[string]types.Chart{},
		deposits: map[types.Currency]types.Deposit{},
		failures: map[string][]error{},
	}
}

// AddStock lists symbol with a quote at price.
func (a *API) AddStock(symbol string, price int64) *API {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stocks[symbol] = types.Stock{Symbol: symbol, Name: symbol, Market: "KOSPI"}
	a.quotes[symbol] = types.Quote{Symbol: symbol, Price: decimal.NewFromInt(price)}
	return a
}

func (a *API) SetQuote(q types.Quote) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.stocks[q.Symbol]; !ok {
		a.stocks[q.Symbol] = types.Stock{Symbol: q.Symbol, Name: q.Symbol}
	}
	a.quotes[q.Symbol] = q
}

func (a *API) SetChart(c types.Chart) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.charts[c.Symbol] = c
}

func (a *API) SetHoldings(h ...types.Holding) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.holdings = append([]types.Holding(nil), h...)
}

func (a *API) SetDeposit(currency types.Currency, amount int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deposits[currency] = types.Deposit{Currency: currency, Amount: decimal.NewFromInt(amount)}
}

func (a *API) SetMarketClosed(closed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marketClosed = closed
}

func (a *API) SetPending(orders ...types.Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append([]types.Order(nil), orders...)
}

// FailNext queues errors for op: account, stock, quote, chart, buy, sell,
// balance, pending or cancel.
func (a *API) FailNext(op string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = append(a.failures[op], errs...)
}

func (a *API) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// CallCount returns how many times op was invoked.
func (a *API) CallCount(op string) int {
	n := 0
	for _, c := range a.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (a *API) Placed() []types.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Order(nil), a.placed...)
}

func (a *API) Cancelled() []types.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Order(nil), a.cancelled...)
}

// begin records the call and pops a queued failure. Must not hold a.mu.
func (a *API) begin(op string) error {
	if a.OnCall != nil {
		a.OnCall(op)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, op)
	if q := a.failures[op]; len(q) > 0 {
		a.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (a *API) Account(ctx context.Context) (types.Account, error) {
	if err := a.begin("account"); err != nil {
		return types.Account{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.account, nil
}

func (a *API) Stock(ctx context.Context, symbol string) (types.Stock, error) {
	if err := a.begin("stock"); err != nil {
		return types.Stock{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.stocks[symbol]
	if !ok {
		return types.Stock{}, broker.ErrNotFound
	}
	return s, nil
}

func (a *API) Quote(ctx context.Context, stock types.Stock) (types.Quote, error) {
	if err := a.begin("quote"); err != nil {
		return types.Quote{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.quotes[stock.Symbol]
	if !ok {
		return types.Quote{}, broker.ErrNotFound
	}
	return q, nil
}

func (a *API) Chart(ctx context.Context, stock types.Stock, start, end time.Time) (types.Chart, error) {
	if err := a.begin("chart"); err != nil {
		return types.Chart{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.charts[stock.Symbol]
	if !ok {
		return types.Chart{}, broker.ErrNotFound
	}
	return c, nil
}

func (a *API) Buy(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return a.place("buy", types.SideBuy, stock, qty, price)
}

func (a *API) Sell(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return a.place("sell", types.SideSell, stock, qty, price)
}

func (a *API) place(op string, side types.Side, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	if err := a.begin(op); err != nil {
		return types.Order{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.marketClosed {
		return types.Order{}, broker.ErrMarketClosed
	}
	a.seq++
	o := types.Order{
		ID:       fmt.Sprintf("FAKE-%d", a.seq),
		Symbol:   stock.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Status:   "OPEN",
		PlacedAt: time.Now(),
	}
	a.placed = append(a.placed, o)
	a.pending = append(a.pending, o)
	return o, nil
}

func (a *API) Balance(ctx context.Context, account types.Account) (types.Balance, error) {
	if err := a.begin("balance"); err != nil {
		return types.Balance{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	deposits := make(map[types.Currency]types.Deposit, len(a.deposits))
	for k, v := range a.deposits {
		deposits[k] = v
	}
	return types.Balance{
		Stocks:   append([]types.Holding(nil), a.holdings...),
		Deposits: deposits,
	}, nil
}

func (a *API) PendingOrders(ctx context.Context, account types.Account) ([]types.Order, error) {
	if err := a.begin("pending"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Order(nil), a.pending...), nil
}

func (a *API) Cancel(ctx context.Context, account types.Account, order types.Order) error {
	if err := a.begin("cancel"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, o := range a.pending {
		if o.ID == order.ID {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			a.cancelled = append(a.cancelled, o)
			return nil
		}
	}
	return broker.ErrNotFound
}
