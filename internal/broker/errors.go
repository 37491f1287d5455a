package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNotFound means the broker does not know the instrument or order.
	ErrNotFound = errors.New("broker: not found")
	// ErrMarketClosed is returned by order placement outside trading hours.
	ErrMarketClosed = errors.New("broker: market closed")
)

// ConnectionError wraps a transport failure that is worth retrying.
type ConnectionError struct {
	Op     string
	Symbol string
	Cause  error
}

func (e *ConnectionError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("broker %s %s: connection error: %v", e.Op, e.Symbol, e.Cause)
	}
	return fmt.Sprintf("broker %s: connection error: %v", e.Op, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func NewConnectionError(op, symbol string, cause error) *ConnectionError {
	return &ConnectionError{Op: op, Symbol: symbol, Cause: cause}
}

// IsConnectivity reports whether err is a transient transport failure.
// Context cancellation never counts, even though the deadline error
// satisfies net.Error.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
