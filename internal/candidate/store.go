package candidate

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a read handle on the advisory database. The advisory pipeline
// owns the rows; the trader only reads them.
type Store struct {
	db *sql.DB
}

// Open opens an existing advisory database read-only. A missing file is
// created with an empty schema so tests and tooling can seed it.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	_, err := os.Stat(dbPath)
	switch {
	case err == nil:
		return openReadOnly(dbPath)
	case errors.Is(err, fs.ErrNotExist):
		return create(dbPath)
	default:
		return nil, fmt.Errorf("stat db: %w", err)
	}
}

func openReadOnly(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&_busy_timeout=3000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func create(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for tooling that seeds or inspects the tables.
func (s *Store) DB() *sql.DB { return s.db }

// initSchema lays out the advisory tables in a fresh database.
func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS candidate_stock (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    corp_code TEXT,
    corp_name TEXT,
    stock_code TEXT NOT NULL,
    buy_price REAL,
    target_price REAL,
    stop_price REAL,
    support_price INTEGER,
    resistance_price INTEGER,
    growth_score INTEGER NOT NULL DEFAULT 0,
    financial_stability_score INTEGER NOT NULL DEFAULT 0,
    valuation_attractiveness TEXT NOT NULL DEFAULT '',
    technical_signal TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidate_stock_date ON candidate_stock(date);

CREATE TABLE IF NOT EXISTS corporate_quote (
    symbol TEXT PRIMARY KEY,
    market TEXT,
    sector_name TEXT,
    price REAL,
    volume INTEGER,
    amount INTEGER,
    risk TEXT,
    halt INTEGER NOT NULL DEFAULT 0,
    prev_price REAL,
    rate REAL,
    high_limit REAL,
    low_limit REAL,
    open_price REAL,
    high_price REAL,
    low_price REAL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}
