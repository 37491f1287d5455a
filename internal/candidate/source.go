package candidate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"krx-trader/internal/clock"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/types"
)

// LimitUpRate is the minimum percent change treated as a limit-up close.
const LimitUpRate = 29.95

// Filter narrows candidates by advisory scores and labels. Zero values
// disable the corresponding condition.
type Filter struct {
	MinGrowthScore             int      `yaml:"min_growth_score"`
	MinFinancialStabilityScore int      `yaml:"min_financial_stability_score"`
	Valuations                 []string `yaml:"valuations"`
	Signals                    []string `yaml:"signals"`
}

// DefaultFilter is the screen used by the periodic trader.
func DefaultFilter() Filter {
	return Filter{
		MinGrowthScore:             5,
		MinFinancialStabilityScore: 5,
		Valuations:                 []string{"Undervalued", "Fairly valued"},
		Signals: []string{
			"Golden Cross Occurred",
			"Entering Oversold Territory",
			"Range Bound Movement",
			"Approaching Key Support",
		},
	}
}

// signalAliases lists historical spellings still present in stored rows.
var signalAliases = map[string][]string{
	"Golden Cross Occurred": {"Golden Cross Occured"},
}

func expandSignals(signals []string) []string {
	seen := make(map[string]struct{}, len(signals))
	var out []string
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range signals {
		add(s)
		for _, alias := range signalAliases[s] {
			add(alias)
		}
	}
	return out
}

type Options struct {
	// Limit caps the number of FetchToday rows; zero means no cap.
	Limit int
	// Filter, when set, applies the score and label screen.
	Filter *Filter
	// Today returns the trade date; defaults to the KST calendar date.
	Today func() string
}

// Source serves candidate rows from the advisory database.
type Source struct {
	store *Store
	opts  Options
}

var (
	_ interfaces.CandidateSource = (*Source)(nil)
	_ interfaces.LimitUpSource   = (*Source)(nil)
)

func NewSource(store *Store, opts Options) *Source {
	if opts.Today == nil {
		opts.Today = clock.Today
	}
	return &Source{store: store, opts: opts}
}

// FetchToday returns today's candidates not in exclude, best quality
// first and capped at the configured limit.
func (s *Source) FetchToday(ctx context.Context, exclude map[string]struct{}) ([]types.Candidate, error) {
	date := s.opts.Today()
	where := []string{"date = ?"}
	args := []any{date}

	where, args = excludeClause(where, args, "stock_code", exclude)

	if f := s.opts.Filter; f != nil {
		if f.MinGrowthScore > 0 {
			where = append(where, "growth_score >= ?")
			args = append(args, f.MinGrowthScore)
		}
		if f.MinFinancialStabilityScore > 0 {
			where = append(where, "financial_stability_score >= ?")
			args = append(args, f.MinFinancialStabilityScore)
		}
		if len(f.Valuations) > 0 {
			where, args = inClause(where, args, "valuation_attractiveness", f.Valuations)
		}
		if len(f.Signals) > 0 {
			where, args = inClause(where, args, "technical_signal", expandSignals(f.Signals))
		}
	}

	query := `SELECT id, stock_code, date, buy_price, target_price, stop_price,
       support_price, resistance_price, growth_score, financial_stability_score,
       valuation_attractiveness, technical_signal
FROM candidate_stock
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY (growth_score + financial_stability_score) DESC, id ASC`
	if s.opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, s.opts.Limit)
	}

	var out []types.Candidate
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c                          types.Candidate
				buy, target, stop          sql.NullFloat64
				support, resistance        sql.NullInt64
				valuation, technicalSignal sql.NullString
			)
			if err := rows.Scan(&c.ID, &c.StockCode, &c.Date, &buy, &target, &stop,
				&support, &resistance, &c.GrowthScore, &c.FinancialStabilityScore,
				&valuation, &technicalSignal); err != nil {
				return err
			}
			c.BuyPrice = nullDecimal(buy)
			c.TargetPrice = nullDecimal(target)
			c.StopPrice = nullDecimal(stop)
			if support.Valid {
				v := support.Int64
				c.SupportPrice = &v
			}
			if resistance.Valid {
				v := resistance.Int64
				c.ResistancePrice = &v
			}
			c.ValuationAttractiveness = valuation.String
			c.TechnicalSignal = technicalSignal.String
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidates for %s: %w", date, err)
	}

	logger.Debug(ctx, "Candidates fetched",
		"date", date,
		"count", len(out),
		"excluded", len(exclude),
		"filtered", s.opts.Filter != nil,
	)
	return out, nil
}

// FetchLimitUp returns every symbol whose latest stored quote closed at the
// upper limit without a risk flag or trading halt. Limit and Filter do not
// apply here.
func (s *Source) FetchLimitUp(ctx context.Context, exclude map[string]struct{}) ([]types.Candidate, error) {
	where := []string{"rate >= ?", "risk = 'none'", "halt = 0"}
	args := []any{LimitUpRate}
	where, args = excludeClause(where, args, "symbol", exclude)

	query := `SELECT symbol, COALESCE(price, 0)
FROM corporate_quote
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY COALESCE(amount, 0) DESC, symbol ASC`

	date := s.opts.Today()
	var out []types.Candidate
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				symbol string
				price  float64
			)
			if err := rows.Scan(&symbol, &price); err != nil {
				return err
			}
			out = append(out, types.Candidate{
				StockCode: symbol,
				Date:      date,
				BuyPrice:  decimal.NewFromFloat(price),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch limit-up quotes: %w", err)
	}

	logger.Debug(ctx, "Limit-up candidates fetched", "count", len(out))
	return out, nil
}

func (s *Store) readTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

func (s *Source) readTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.store.readTx(ctx, fn)
}

func excludeClause(where []string, args []any, column string, exclude map[string]struct{}) ([]string, []any) {
	if len(exclude) == 0 {
		return where, args
	}
	symbols := make([]string, 0, len(exclude))
	for sym := range exclude {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	where = append(where, column+" NOT IN ("+placeholders(len(symbols))+")")
	for _, sym := range symbols {
		args = append(args, sym)
	}
	return where, args
}

func inClause(where []string, args []any, column string, values []string) ([]string, []any) {
	where = append(where, column+" IN ("+placeholders(len(values))+")")
	for _, v := range values {
		args = append(args, v)
	}
	return where, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullDecimal(v sql.NullFloat64) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v.Float64)
}
