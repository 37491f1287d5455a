package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

const DefaultBaseDelay = 200 * time.Millisecond

// Options configures the retry policy.
type Options struct {
	// BaseDelay is the first backoff delay; it doubles after every
	// consecutive connectivity failure within one call.
	BaseDelay time.Duration
	// MaxAttempts caps attempts per call. Zero retries until success.
	MaxAttempts int
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client funnels all brokerage I/O. Lookups and reads retry on
// connectivity errors, "not found" becomes a nil result and order
// placement outside market hours is a logged skip. Any other error is
// returned to the caller unchanged.
//
// Client keeps no session state and is safe for concurrent use by several
// runners as long as the underlying API is.
type Client struct {
	api  interfaces.BrokerAPI
	opts Options
}

func NewClient(api interfaces.BrokerAPI, opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Client{api: api, opts: opts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn until it succeeds or fails with a non-connectivity error.
// The delay starts from the base on every call.
func retry[T any](ctx context.Context, c *Client, op, symbol string, fn func() (T, error)) (T, error) {
	delay := c.opts.BaseDelay
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil || !IsConnectivity(err) {
			return v, err
		}
		if c.opts.MaxAttempts > 0 && attempt >= c.opts.MaxAttempts {
			return v, fmt.Errorf("%s gave up after %d attempts: %w", op, attempt, err)
		}
		logger.Warn(ctx, "Broker connectivity failure, retrying",
			"op", op,
			"symbol", symbol,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if serr := c.opts.Sleep(ctx, delay); serr != nil {
			return v, serr
		}
		delay *= 2
	}
}

func (c *Client) Account(ctx context.Context) (types.Account, error) {
	return retry(ctx, c, "account", "", func() (types.Account, error) {
		return c.api.Account(ctx)
	})
}

// Stock resolves symbol. It returns nil without error when the exchange
// does not list it.
func (c *Client) Stock(ctx context.Context, symbol string) (*types.Stock, error) {
	s, err := retry(ctx, c, "stock", symbol, func() (types.Stock, error) {
		return c.api.Stock(ctx, symbol)
	})
	if errors.Is(err, ErrNotFound) {
		logger.Debug(ctx, "Stock not found", "symbol", symbol)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Quote returns a fresh snapshot, or nil when the symbol cannot be resolved.
func (c *Client) Quote(ctx context.Context, symbol string) (*types.Quote, error) {
	stock, err := c.Stock(ctx, symbol)
	if err != nil || stock == nil {
		return nil, err
	}
	q, err := retry(ctx, c, "quote", symbol, func() (types.Quote, error) {
		return c.api.Quote(ctx, *stock)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Chart returns bars between start and end, or nil when not found.
func (c *Client) Chart(ctx context.Context, symbol string, start, end time.Time) (*types.Chart, error) {
	stock, err := c.Stock(ctx, symbol)
	if err != nil || stock == nil {
		return nil, err
	}
	ch, err := retry(ctx, c, "chart", symbol, func() (types.Chart, error) {
		return c.api.Chart(ctx, *stock, start, end)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Buy places a limit buy. A nil order with nil error means the market was
// closed and nothing was sent. Placement is never retried.
func (c *Client) Buy(ctx context.Context, stock types.Stock, qty int64, price decimal.Decimal) (*types.Order, error) {
	return c.place(ctx, types.SideBuy, stock, qty, price)
}

// Sell places a limit sell with the same skip semantics as Buy.
func (c *Client) Sell(ctx context.Context, stock types.Stock, qty int64, price decimal.Decimal) (*types.Order, error) {
	return c.place(ctx, types.SideSell, stock, qty, price)
}

func (c *Client) place(ctx context.Context, side types.Side, stock types.Stock, qty int64, price decimal.Decimal) (*types.Order, error) {
	account, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}
	var order types.Order
	if side == types.SideBuy {
		order, err = c.api.Buy(ctx, account, stock, qty, price)
	} else {
		order, err = c.api.Sell(ctx, account, stock, qty, price)
	}
	if errors.Is(err, ErrMarketClosed) {
		logger.Warn(ctx, "Market closed, order skipped",
			"symbol", stock.Symbol,
			"side", string(side),
			"qty", qty,
			"price", price.String(),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) Balance(ctx context.Context) (types.Balance, error) {
	account, err := c.Account(ctx)
	if err != nil {
		return types.Balance{}, err
	}
	return retry(ctx, c, "balance", "", func() (types.Balance, error) {
		return c.api.Balance(ctx, account)
	})
}

func (c *Client) PendingOrders(ctx context.Context) ([]types.Order, error) {
	account, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}
	return retry(ctx, c, "pending_orders", "", func() ([]types.Order, error) {
		return c.api.PendingOrders(ctx, account)
	})
}

// CancelAll cancels every pending order on the account and returns how many
// were cancelled. Orders that filled in the meantime are skipped; other
// failures are collected so one stuck order does not leave the rest open.
func (c *Client) CancelAll(ctx context.Context) (int, error) {
	account, err := c.Account(ctx)
	if err != nil {
		return 0, err
	}
	orders, err := retry(ctx, c, "pending_orders", "", func() ([]types.Order, error) {
		return c.api.PendingOrders(ctx, account)
	})
	if err != nil {
		return 0, err
	}

	var errs []error
	cancelled := 0
	for _, o := range orders {
		_, err := retry(ctx, c, "cancel", o.Symbol, func() (struct{}, error) {
			return struct{}{}, c.api.Cancel(ctx, account, o)
		})
		switch {
		case err == nil:
			cancelled++
			logger.Info(ctx, "Order cancelled", "order_id", o.ID, "symbol", o.Symbol, "side", string(o.Side))
		case errors.Is(err, ErrNotFound):
			logger.Debug(ctx, "Order already gone", "order_id", o.ID, "symbol", o.Symbol)
		default:
			errs = append(errs, fmt.Errorf("cancel %s: %w", o.ID, err))
		}
	}
	return cancelled, errors.Join(errs...)
}
