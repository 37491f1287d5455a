package zerodha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"krx-trader/internal/broker"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

// kiteClient is the subset of *kiteconnect.Client used by the adapter
type kiteClient interface {
	GetUserProfile() (kiteconnect.UserProfile, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	GetOrders() (kiteconnect.Orders, error)
	CancelOrder(variety string, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error)
	GetHoldings() (kiteconnect.Holdings, error)
	GetUserMargins() (kiteconnect.AllMargins, error)
}

var _ kiteClient = (*kiteconnect.Client)(nil)

type Params struct {
	APIKey      string
	AccessToken string
	Exchange    string
}

// Zerodha adapts Kite Connect to the broker boundary. Construction loads
// the exchange instrument dump, which is a multi-megabyte download.
type Zerodha struct {
	p           Params
	kc          kiteClient
	instruments *instrumentMapper
}

var _ interfaces.BrokerAPI = (*Zerodha)(nil)

func NewZerodha(ctx context.Context, p Params) (*Zerodha, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, errors.New("missing API key/access token")
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return newWithClient(ctx, p, kc)
}

func newWithClient(ctx context.Context, p Params, kc kiteClient) (*Zerodha, error) {
	if p.Exchange == "" {
		p.Exchange = kiteconnect.ExchangeNSE
	}
	z := &Zerodha{p: p, kc: kc, instruments: newInstrumentMapper()}
	if err := z.loadInstruments(ctx); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *Zerodha) loadInstruments(ctx context.Context) error {
	list, err := z.kc.GetInstrumentsByExchange(z.p.Exchange)
	if err != nil {
		return fmt.Errorf("load %s instruments: %w", z.p.Exchange, translate("instruments", "", err))
	}
	z.instruments.clear()
	for _, in := range list {
		if in.InstrumentType != "EQ" {
			continue
		}
		z.instruments.addMapping(types.Stock{
			Symbol:          in.Tradingsymbol,
			Name:            in.Name,
			Market:          in.Exchange,
			InstrumentToken: int(in.InstrumentToken),
		})
	}
	logger.Info(ctx, "Kite instruments loaded", "exchange", z.p.Exchange, "count", z.instruments.size())
	return nil
}

// translate maps Kite errors onto the broker taxonomy.
func translate(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) {
		msg := strings.ToLower(kerr.Message)
		switch {
		case kerr.ErrorType == kiteconnect.NetworkError:
			return broker.NewConnectionError(op, symbol, err)
		case strings.Contains(msg, "market") && strings.Contains(msg, "closed"):
			return fmt.Errorf("%w: %s", broker.ErrMarketClosed, kerr.Message)
		case kerr.ErrorType == kiteconnect.InputError && strings.Contains(msg, "invalid"):
			return fmt.Errorf("%w: %s %s", broker.ErrNotFound, symbol, kerr.Message)
		}
		return err
	}
	if broker.IsConnectivity(err) {
		return broker.NewConnectionError(op, symbol, err)
	}
	return err
}

func (z *Zerodha) Account(ctx context.Context) (types.Account, error) {
	profile, err := z.kc.GetUserProfile()
	if err != nil {
		return types.Account{}, translate("account", "", err)
	}
	return types.Account{Number: profile.UserID, ProductCode: kiteconnect.ProductCNC}, nil
}

func (z *Zerodha) Stock(ctx context.Context, symbol string) (types.Stock, error) {
	s, ok := z.instruments.getStock(symbol)
	if !ok {
		return types.Stock{}, fmt.Errorf("%w: %s", broker.ErrNotFound, symbol)
	}
	return s, nil
}

func (z *Zerodha) key(symbol string) string {
	return z.p.Exchange + ":" + symbol
}

func (z *Zerodha) Quote(ctx context.Context, stock types.Stock) (types.Quote, error) {
	quotes, err := z.kc.GetQuote(z.key(stock.Symbol))
	if err != nil {
		return types.Quote{}, translate("quote", stock.Symbol, err)
	}
	q, ok := quotes[z.key(stock.Symbol)]
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: %s", broker.ErrNotFound, stock.Symbol)
	}

	price := decimal.NewFromFloat(q.LastPrice)
	prev := decimal.NewFromFloat(q.OHLC.Close)
	rate := decimal.Zero
	if prev.Sign() > 0 {
		rate = price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
	}
	volume := int64(q.Volume)
	return types.Quote{
		Symbol:    stock.Symbol,
		Market:    z.p.Exchange,
		Price:     price,
		Volume:    volume,
		Amount:    decimal.NewFromFloat(q.AveragePrice).Mul(decimal.NewFromInt(volume)),
		Rate:      rate,
		Open:      decimal.NewFromFloat(q.OHLC.Open),
		High:      decimal.NewFromFloat(q.OHLC.High),
		Low:       decimal.NewFromFloat(q.OHLC.Low),
		PrevPrice: prev,
		HighLimit: decimal.NewFromFloat(q.UpperCircuitLimit),
		LowLimit:  decimal.NewFromFloat(q.LowerCircuitLimit),
		Risk:      "none",
		Time:      time.Now(),
	}, nil
}

func (z *Zerodha) Chart(ctx context.Context, stock types.Stock, start, end time.Time) (types.Chart, error) {
	data, err := z.kc.GetHistoricalData(stock.InstrumentToken, "day", start, end, false, false)
	if err != nil {
		return types.Chart{}, translate("chart", stock.Symbol, err)
	}
	chart := types.Chart{Symbol: stock.Symbol, Bars: make([]types.ChartBar, 0, len(data))}
	var prevClose decimal.Decimal
	for i, d := range data {
		closePrice := decimal.NewFromFloat(d.Close)
		volume := int64(d.Volume)
		bar := types.ChartBar{
			Time:   d.Date.Time,
			Open:   decimal.NewFromFloat(d.Open),
			High:   decimal.NewFromFloat(d.High),
			Low:    decimal.NewFromFloat(d.Low),
			Close:  closePrice,
			Volume: volume,
			// Kite has no traded value per bar; approximate with close * volume
			Amount: closePrice.Mul(decimal.NewFromInt(volume)),
		}
		if i > 0 {
			bar.Change = closePrice.Sub(prevClose)
		}
		prevClose = closePrice
		chart.Bars = append(chart.Bars, bar)
	}
	return chart, nil
}

func (z *Zerodha) Buy(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return z.place(ctx, types.SideBuy, account, stock, qty, price)
}

func (z *Zerodha) Sell(ctx context.Context, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	return z.place(ctx, types.SideSell, account, stock, qty, price)
}

func (z *Zerodha) place(ctx context.Context, side types.Side, account types.Account, stock types.Stock, qty int64, price decimal.Decimal) (types.Order, error) {
	txn := kiteconnect.TransactionTypeBuy
	if side == types.SideSell {
		txn = kiteconnect.TransactionTypeSell
	}
	product := account.ProductCode
	if product == "" {
		product = kiteconnect.ProductCNC
	}
	resp, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        z.p.Exchange,
		Tradingsymbol:   stock.Symbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         product,
		OrderType:       kiteconnect.OrderTypeLimit,
		TransactionType: txn,
		Quantity:        int(qty),
		Price:           price.InexactFloat64(),
		Tag:             "krx-trader",
	})
	if err != nil {
		return types.Order{}, translate("order", stock.Symbol, err)
	}
	return types.Order{
		ID:       resp.OrderID,
		Symbol:   stock.Symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Status:   "PLACED",
		PlacedAt: time.Now(),
	}, nil
}

func (z *Zerodha) Balance(ctx context.Context, account types.Account) (types.Balance, error) {
	holdings, err := z.kc.GetHoldings()
	if err != nil {
		return types.Balance{}, translate("balance", "", err)
	}
	margins, err := z.kc.GetUserMargins()
	if err != nil {
		return types.Balance{}, translate("balance", "", err)
	}

	bal := types.Balance{Deposits: map[types.Currency]types.Deposit{
		types.INR: {Currency: types.INR, Amount: decimal.NewFromFloat(margins.Equity.Net)},
	}}
	for _, h := range holdings {
		qty := int64(h.Quantity)
		if qty <= 0 {
			continue
		}
		bal.Stocks = append(bal.Stocks, types.Holding{
			Symbol:   h.Tradingsymbol,
			Name:     h.Tradingsymbol,
			Quantity: qty,
			AvgPrice: decimal.NewFromFloat(h.AveragePrice),
			Price:    decimal.NewFromFloat(h.LastPrice),
			Currency: types.INR,
		})
	}
	return bal, nil
}

var openStatuses = map[string]bool{
	"OPEN":                      true,
	"OPEN PENDING":              true,
	"TRIGGER PENDING":           true,
	"AMO REQ RECEIVED":          true,
	"VALIDATION PENDING":        true,
	"PUT ORDER REQ RECEIVED":    true,
	"MODIFY VALIDATION PENDING": true,
}

func (z *Zerodha) PendingOrders(ctx context.Context, account types.Account) ([]types.Order, error) {
	orders, err := z.kc.GetOrders()
	if err != nil {
		return nil, translate("pending_orders", "", err)
	}
	pending := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		if !openStatuses[o.Status] {
			continue
		}
		side := types.SideBuy
		if o.TransactionType == kiteconnect.TransactionTypeSell {
			side = types.SideSell
		}
		pending = append(pending, types.Order{
			ID:       o.OrderID,
			Branch:   o.Variety,
			Symbol:   o.TradingSymbol,
			Side:     side,
			Quantity: int64(o.PendingQuantity),
			Price:    decimal.NewFromFloat(o.Price),
			Status:   o.Status,
			PlacedAt: o.OrderTimestamp.Time,
		})
	}
	return pending, nil
}

// Cancel uses Order.Branch as the Kite order variety.
func (z *Zerodha) Cancel(ctx context.Context, account types.Account, order types.Order) error {
	variety := order.Branch
	if variety == "" {
		variety = kiteconnect.VarietyRegular
	}
	_, err := z.kc.CancelOrder(variety, order.ID, nil)
	return translate("cancel", order.Symbol, err)
}
