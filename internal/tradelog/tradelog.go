package tradelog

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"krx-trader/internal/clock"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

var (
	mu  sync.Mutex
	dir string
)

// Entry is one line of the daily trade journal.
type Entry struct {
	Time    string          `json:"time"`
	Runner  string          `json:"runner"`
	Symbol  string          `json:"symbol"`
	Side    string          `json:"side"`
	OrderID string          `json:"order_id"`
	Status  string          `json:"status"`
	Qty     int64           `json:"qty"`
	Price   decimal.Decimal `json:"price"`
	Reason  string          `json:"reason,omitempty"`
}

type DecisionEntry struct {
	Time   string          `json:"time"`
	Runner string          `json:"runner"`
	Symbol string          `json:"symbol"`
	Action string          `json:"action"`
	Reason string          `json:"reason"`
	Price  decimal.Decimal `json:"price"`
	Extra  map[string]any  `json:"extra,omitempty"`
}

// SetDir overrides the journal root. An empty dir restores the default.
func SetDir(d string) {
	mu.Lock()
	defer mu.Unlock()
	dir = d
}

func Dir() string {
	mu.Lock()
	defer mu.Unlock()
	return logDir()
}

func logDir() string {
	if dir != "" {
		return dir
	}
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// TradesPath is the journal file for the KST date of t.
func TradesPath(t time.Time) string {
	return filepath.Join(Dir(), "trades", clock.Date(t)+".jsonl")
}

func DecisionsPath(t time.Time) string {
	return filepath.Join(Dir(), "decisions", clock.Date(t)+".jsonl")
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:    "time",
	MessageKey: "event",
	LineEnding: zapcore.DefaultLineEnding,
	EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(clock.KST).Format("2006-01-02 15:04:05"))
	},
	EncodeDuration: zapcore.StringDurationEncoder,
}

// write appends one JSON line to path. Callers hold mu.
func write(path, event string, fields ...zap.Field) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), zapcore.DebugLevel)
	zap.New(core).Info(event, fields...)
	return f.Sync()
}

func Append(e Entry) error {
	now := time.Now()
	p := TradesPath(now)
	mu.Lock()
	defer mu.Unlock()
	fields := []zap.Field{
		zap.String("runner", e.Runner),
		zap.String("symbol", e.Symbol),
		zap.String("side", e.Side),
		zap.String("order_id", e.OrderID),
		zap.String("status", e.Status),
		zap.Int64("qty", e.Qty),
		zap.String("price", e.Price.String()),
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	return write(p, "trade", fields...)
}

func AppendDecision(e DecisionEntry) error {
	now := time.Now()
	p := DecisionsPath(now)
	mu.Lock()
	defer mu.Unlock()
	fields := []zap.Field{
		zap.String("runner", e.Runner),
		zap.String("symbol", e.Symbol),
		zap.String("action", e.Action),
		zap.String("reason", e.Reason),
		zap.String("price", e.Price.String()),
	}
	if len(e.Extra) > 0 {
		fields = append(fields, zap.Any("extra", e.Extra))
	}
	return write(p, "decision", fields...)
}

// Journal records one runner's orders and decisions. Write failures are
// logged and never interrupt trading.
type Journal struct {
	Runner string
}

func (j Journal) Trade(ctx context.Context, o types.Order, reason string) {
	err := Append(Entry{
		Runner:  j.Runner,
		Symbol:  o.Symbol,
		Side:    string(o.Side),
		OrderID: o.ID,
		Status:  o.Status,
		Qty:     o.Quantity,
		Price:   o.Price,
		Reason:  reason,
	})
	if err != nil {
		logger.Warn(ctx, "Trade journal write failed", "symbol", o.Symbol, "order_id", o.ID, "error", err)
	}
}

func (j Journal) Decision(ctx context.Context, symbol string, action types.Action, reason string, price decimal.Decimal) {
	err := AppendDecision(DecisionEntry{
		Runner: j.Runner,
		Symbol: symbol,
		Action: string(action),
		Reason: reason,
		Price:  price,
	})
	if err != nil {
		logger.Warn(ctx, "Decision journal write failed", "symbol", symbol, "error", err)
	}
}

// CompressOlder gzips journal and session log files older than the
// retention window.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := Dir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(p) {
		case ".jsonl", ".log":
		default:
			return nil
		}
		if day, ok := fileDate(p); ok && !day.Before(clock.StartOfDay(cutoff)) {
			return nil
		}
		info, er := d.Info()
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		compressFile(p)
		return nil
	})
}

// fileDate parses the YYYY-MM-DD base name used by daily files.
func fileDate(p string) (time.Time, bool) {
	base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	t, err := time.ParseInLocation("2006-01-02", base, clock.KST)
	return t, err == nil
}

func compressFile(p string) {
	gz := p + ".gz"
	// an existing archive wins; drop the uncompressed copy
	if _, err := os.Stat(gz); err == nil {
		_ = os.Remove(p)
		return
	}

	in, err := os.Open(p)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	gw := gzip.NewWriter(out)
	_, copyErr := io.Copy(gw, in)
	_ = gw.Close()
	_ = out.Close()
	if copyErr == nil {
		_ = os.Remove(p)
	}
}
