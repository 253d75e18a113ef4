package storage

// sqlite.go — the authoritative store for the simulation (pure Go, no CGo).
//
// Layout notes:
//   - One table per entity of the logical model; cascade deletes flow from
//     competitions down. trades.position_id is SET NULL so closing a
//     position leaves its trade rows intact.
//   - All decimals are stored as TEXT for exactness: money rounded to 2
//     fractional digits, quantities and prices to 8, at persistence time.
//   - Timestamps are RFC3339Nano UTC strings; they sort lexicographically.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/gauntlet/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS competitions (
    id                          TEXT PRIMARY KEY,
    name                        TEXT NOT NULL,
    description                 TEXT NOT NULL DEFAULT '',
    status                      TEXT NOT NULL DEFAULT 'pending',
    start_time                  TEXT NOT NULL,
    end_time                    TEXT NOT NULL,
    invocation_interval_minutes INTEGER NOT NULL DEFAULT 5,
    initial_capital             TEXT NOT NULL,
    max_leverage                TEXT NOT NULL,
    maintenance_margin_pct      TEXT NOT NULL,
    allowed_asset_classes       TEXT NOT NULL DEFAULT '["crypto"]',
    max_participants            INTEGER NOT NULL DEFAULT 5,
    market_hours_only           INTEGER NOT NULL DEFAULT 0,
    created_at                  TEXT NOT NULL,
    updated_at                  TEXT NOT NULL,
    CHECK (status IN ('pending', 'active', 'completed', 'cancelled'))
);

CREATE TABLE IF NOT EXISTS participants (
    id              TEXT PRIMARY KEY,
    competition_id  TEXT NOT NULL REFERENCES competitions(id) ON DELETE CASCADE,
    name            TEXT NOT NULL,
    agent_provider  TEXT NOT NULL,
    agent_model     TEXT NOT NULL,
    agent_config    TEXT NOT NULL DEFAULT '{}',
    endpoint_url    TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'active',
    joined_at       TEXT NOT NULL,
    initial_capital TEXT NOT NULL,
    current_equity  TEXT NOT NULL,
    peak_equity     TEXT NOT NULL,
    total_trades    INTEGER NOT NULL DEFAULT 0,
    winning_trades  INTEGER NOT NULL DEFAULT 0,
    losing_trades   INTEGER NOT NULL DEFAULT 0,
    UNIQUE (competition_id, name),
    CHECK (status IN ('active', 'liquidated', 'disqualified'))
);

CREATE TABLE IF NOT EXISTS portfolios (
    id               TEXT PRIMARY KEY,
    participant_id   TEXT NOT NULL UNIQUE REFERENCES participants(id) ON DELETE CASCADE,
    cash_balance     TEXT NOT NULL,
    equity           TEXT NOT NULL,
    margin_used      TEXT NOT NULL,
    margin_available TEXT NOT NULL,
    realized_pnl     TEXT NOT NULL,
    unrealized_pnl   TEXT NOT NULL,
    total_pnl        TEXT NOT NULL,
    current_leverage TEXT NOT NULL,
    margin_level     TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id                 TEXT PRIMARY KEY,
    portfolio_id       TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
    participant_id     TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    symbol             TEXT NOT NULL,
    asset_class        TEXT NOT NULL,
    side               TEXT NOT NULL,
    quantity           TEXT NOT NULL,
    entry_price        TEXT NOT NULL,
    current_price      TEXT NOT NULL,
    leverage           TEXT NOT NULL,
    margin_required    TEXT NOT NULL,
    notional_value     TEXT NOT NULL,
    unrealized_pnl     TEXT NOT NULL,
    unrealized_pnl_pct TEXT NOT NULL,
    exit_plan          TEXT,
    opened_at          TEXT NOT NULL,
    updated_at         TEXT NOT NULL,
    CHECK (side IN ('long', 'short'))
);

CREATE TABLE IF NOT EXISTS invocations (
    id                   TEXT PRIMARY KEY,
    participant_id       TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    competition_id       TEXT NOT NULL REFERENCES competitions(id) ON DELETE CASCADE,
    prompt_text          TEXT NOT NULL DEFAULT '',
    prompt_tokens        INTEGER NOT NULL DEFAULT 0,
    response_tokens      INTEGER NOT NULL DEFAULT 0,
    market_data_snapshot TEXT,
    portfolio_snapshot   TEXT,
    response_text        TEXT NOT NULL DEFAULT '',
    parsed_decision      TEXT,
    execution_results    TEXT,
    status               TEXT NOT NULL DEFAULT 'pending',
    error_message        TEXT NOT NULL DEFAULT '',
    response_time_ms     INTEGER NOT NULL DEFAULT 0,
    estimated_cost       REAL NOT NULL DEFAULT 0,
    invoked_at           TEXT NOT NULL,
    CHECK (status IN ('pending', 'success', 'timeout', 'error', 'invalid_response'))
);

CREATE TABLE IF NOT EXISTS orders (
    id               TEXT PRIMARY KEY,
    participant_id   TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    competition_id   TEXT NOT NULL REFERENCES competitions(id) ON DELETE CASCADE,
    invocation_id    TEXT REFERENCES invocations(id) ON DELETE SET NULL,
    symbol           TEXT NOT NULL,
    asset_class      TEXT NOT NULL,
    order_type       TEXT NOT NULL DEFAULT 'market',
    side             TEXT NOT NULL,
    quantity         TEXT NOT NULL,
    leverage         TEXT NOT NULL,
    requested_price  TEXT,
    executed_price   TEXT,
    status           TEXT NOT NULL,
    rejection_reason TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    executed_at      TEXT,
    CHECK (order_type IN ('market', 'limit')),
    CHECK (side IN ('buy', 'sell'))
);

CREATE TABLE IF NOT EXISTS trades (
    id               TEXT PRIMARY KEY,
    order_id         TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    participant_id   TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    position_id      TEXT REFERENCES positions(id) ON DELETE SET NULL,
    symbol           TEXT NOT NULL,
    side             TEXT NOT NULL,
    quantity         TEXT NOT NULL,
    price            TEXT NOT NULL,
    action           TEXT NOT NULL,
    leverage         TEXT NOT NULL,
    notional_value   TEXT NOT NULL,
    margin_impact    TEXT NOT NULL,
    realized_pnl     TEXT,
    realized_pnl_pct TEXT,
    executed_at      TEXT NOT NULL,
    CHECK (action IN ('open', 'close', 'increase', 'decrease'))
);

CREATE TABLE IF NOT EXISTS portfolio_history (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    participant_id TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    equity         TEXT NOT NULL,
    cash_balance   TEXT NOT NULL,
    margin_used    TEXT NOT NULL,
    realized_pnl   TEXT NOT NULL,
    unrealized_pnl TEXT NOT NULL,
    total_pnl      TEXT NOT NULL,
    recorded_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_portfolio   ON positions(portfolio_id);
CREATE INDEX IF NOT EXISTS idx_positions_participant ON positions(participant_id);
CREATE INDEX IF NOT EXISTS idx_trades_participant    ON trades(participant_id, executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_invocations_part      ON invocations(participant_id, invoked_at DESC);
CREATE INDEX IF NOT EXISTS idx_history_participant   ON portfolio_history(participant_id, recorded_at);
`

// querier abstracts *sql.DB and *sql.Tx so every query method works both
// standalone and inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStorage implements ports.Storage on SQLite.
type SQLiteStorage struct {
	db *sql.DB // nil on transaction-backed copies
	q  querier
}

// NewSQLiteStorage opens (or creates) the database at the given path and
// applies the schema. Use ":memory:" for tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db, q: db}, nil
}

// WithTx runs fn against a transaction-backed view of the store. Nested
// calls reuse the outer transaction.
func (s *SQLiteStorage) WithTx(ctx context.Context, fn func(st ports.Storage) error) error {
	if s.db == nil {
		return fn(s) // already inside a transaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.WithTx: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStorage{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.WithTx: commit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- encoding helpers ---

// moneyStr persists a monetary amount with 2 fractional digits.
func moneyStr(d decimal.Decimal) string { return d.Round(2).String() }

// exactStr persists quantities, prices and percentages with 8 fractional digits.
func exactStr(d decimal.Decimal) string { return d.Round(8).String() }

func moneyPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return moneyStr(*d)
}

func exactPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return exactStr(*d)
}

func scanDec(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func scanDecPtr(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func timeStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeStr(*t)
}

func scanTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Tolerate second-precision rows.
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

