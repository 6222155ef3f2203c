// Package store is the sqlite-backed persistence layer (grounded on
// store/strategy.go's raw-query style: a thin struct wrapping *sql.DB, hand
// written SQL, JSON-in-column for nested config). Every table except
// stop_adjustments carries a tenant_id column, and every query on those
// tables filters by it (spec §3: "strict multi-tenant isolation
// throughout"). stop_adjustments is keyed by adjustment_token and
// position_id only.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	base_asset TEXT NOT NULL,
	quote_asset TEXT NOT NULL,
	min_qty TEXT,
	max_qty TEXT,
	UNIQUE(tenant_id, name)
);

CREATE TABLE IF NOT EXISTS strategies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	market_bias TEXT NOT NULL DEFAULT 'NEUTRAL',
	config TEXT NOT NULL DEFAULT '{}',
	win_count INTEGER NOT NULL DEFAULT 0,
	loss_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE(tenant_id, name)
);

CREATE TABLE IF NOT EXISTS trading_intents (
	intent_id TEXT PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	symbol_id INTEGER NOT NULL,
	strategy_id INTEGER NOT NULL,
	side TEXT NOT NULL,
	status TEXT NOT NULL,
	quantity TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	stop_price TEXT NOT NULL,
	target_price TEXT,
	capital TEXT NOT NULL,
	risk_amount TEXT NOT NULL,
	risk_percent TEXT NOT NULL,
	regime TEXT,
	confidence REAL,
	reason TEXT,
	pattern_code TEXT,
	pattern_event_id TEXT,
	pattern_source TEXT,
	validated_at INTEGER,
	executed_at INTEGER,
	validation_result TEXT,
	execution_result TEXT,
	error_message TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intents_tenant ON trading_intents(tenant_id);

CREATE TABLE IF NOT EXISTS pattern_triggers (
	tenant_id INTEGER NOT NULL,
	pattern_event_id TEXT NOT NULL,
	intent_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, pattern_event_id)
);

CREATE TABLE IF NOT EXISTS operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	side TEXT NOT NULL,
	status TEXT NOT NULL,
	stop_price TEXT NOT NULL,
	target_price TEXT,
	entry_price TEXT NOT NULL,
	quantity TEXT NOT NULL,
	is_margin INTEGER NOT NULL DEFAULT 0,
	leverage TEXT,
	entry_order_ids TEXT NOT NULL DEFAULT '[]',
	exit_order_ids TEXT NOT NULL DEFAULT '[]',
	opened_at INTEGER NOT NULL,
	closed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_operations_tenant ON operations(tenant_id);

CREATE TABLE IF NOT EXISTS policy_states (
	tenant_id INTEGER NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	status TEXT NOT NULL,
	starting_capital TEXT NOT NULL,
	current_capital TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	trade_count INTEGER NOT NULL DEFAULT 0,
	win_count INTEGER NOT NULL DEFAULT 0,
	loss_count INTEGER NOT NULL DEFAULT 0,
	max_drawdown_percent TEXT NOT NULL,
	max_trades_per_day INTEGER NOT NULL,
	paused_at INTEGER,
	pause_reason TEXT,
	PRIMARY KEY (tenant_id, year, month)
);

CREATE TABLE IF NOT EXISTS stop_adjustments (
	adjustment_token TEXT PRIMARY KEY,
	position_id TEXT NOT NULL,
	old_stop TEXT NOT NULL,
	new_stop TEXT NOT NULL,
	reason TEXT NOT NULL,
	current_price TEXT,
	spans_crossed INTEGER,
	step_index INTEGER,
	metadata TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stop_adjustments_position ON stop_adjustments(position_id);

CREATE TABLE IF NOT EXISTS entry_gate_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	reasons TEXT NOT NULL DEFAULT '[]',
	details TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entry_gate_tenant ON entry_gate_decisions(tenant_id);
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// SymbolRow is the persisted Symbol shape (spec §3).
type SymbolRow struct {
	ID         int64
	TenantID   int64
	Name       string
	BaseAsset  string
	QuoteAsset string
	MinQty     *string
	MaxQty     *string
}

// SymbolStore is the Symbol repository.
type SymbolStore struct{ DB *sql.DB }

func (s SymbolStore) GetByID(ctx context.Context, id, tenantID int64) (SymbolRow, error) {
	var row SymbolRow
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, base_asset, quote_asset, min_qty, max_qty FROM symbols WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	).Scan(&row.ID, &row.TenantID, &row.Name, &row.BaseAsset, &row.QuoteAsset, &row.MinQty, &row.MaxQty)
	if err != nil {
		return SymbolRow{}, fmt.Errorf("store: symbol not found: %w", err)
	}
	return row, nil
}

func (s SymbolStore) Create(ctx context.Context, row SymbolRow) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO symbols (tenant_id, name, base_asset, quote_asset, min_qty, max_qty) VALUES (?, ?, ?, ?, ?, ?)`,
		row.TenantID, row.Name, row.BaseAsset, row.QuoteAsset, row.MinQty, row.MaxQty,
	)
	if err != nil {
		return 0, fmt.Errorf("store: create symbol: %w", err)
	}
	return res.LastInsertId()
}

// StrategyRow is the persisted Strategy shape (spec §3).
type StrategyRow struct {
	ID         int64
	TenantID   int64
	Name       string
	MarketBias string
	Config     map[string]any
	WinCount   int
	LossCount  int
}

// StrategyStore is the Strategy repository.
type StrategyStore struct{ DB *sql.DB }

func (s StrategyStore) GetByID(ctx context.Context, id, tenantID int64) (StrategyRow, error) {
	var row StrategyRow
	var configJSON string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, market_bias, config, win_count, loss_count FROM strategies WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	).Scan(&row.ID, &row.TenantID, &row.Name, &row.MarketBias, &configJSON, &row.WinCount, &row.LossCount)
	if err != nil {
		return StrategyRow{}, fmt.Errorf("store: strategy not found: %w", err)
	}
	row.Config = map[string]any{}
	if err := json.Unmarshal([]byte(configJSON), &row.Config); err != nil {
		return StrategyRow{}, fmt.Errorf("store: decode strategy config: %w", err)
	}
	return row, nil
}

func (s StrategyStore) Create(ctx context.Context, row StrategyRow) (int64, error) {
	configJSON, err := json.Marshal(row.Config)
	if err != nil {
		return 0, fmt.Errorf("store: encode strategy config: %w", err)
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO strategies (tenant_id, name, market_bias, config) VALUES (?, ?, ?, ?)`,
		row.TenantID, row.Name, row.MarketBias, string(configJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("store: create strategy: %w", err)
	}
	return res.LastInsertId()
}

// RecordPatternTrigger inserts the (tenant_id, pattern_event_id) pair if
// absent, reporting whether this call was the one that created it - a
// duplicate insert is the idempotency contract (spec §3 PatternTrigger).
func RecordPatternTrigger(ctx context.Context, db *sql.DB, tenantID int64, patternEventID, intentID string, now time.Time) (created bool, err error) {
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pattern_triggers (tenant_id, pattern_event_id, intent_id, created_at) VALUES (?, ?, ?, ?)`,
		tenantID, patternEventID, intentID, now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("store: record pattern trigger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetPatternTrigger looks up the intent_id already recorded for a
// (tenant, pattern_event_id) pair, so a caller can short-circuit before
// creating a second intent for an event it has already processed.
func GetPatternTrigger(ctx context.Context, db *sql.DB, tenantID int64, patternEventID string) (intentID string, found bool, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT intent_id FROM pattern_triggers WHERE tenant_id = ? AND pattern_event_id = ?`,
		tenantID, patternEventID,
	).Scan(&intentID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get pattern trigger: %w", err)
	}
	return intentID, true, nil
}

// SaveStopAdjustment persists a StopAdjustment idempotently: a second insert
// of the same token is a no-op (spec §3: "persisting a token twice is a
// no-op").
func SaveStopAdjustment(ctx context.Context, db *sql.DB, token, positionID, oldStop, newStop, reason string, now time.Time) (created bool, err error) {
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stop_adjustments (adjustment_token, position_id, old_stop, new_stop, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		token, positionID, oldStop, newStop, reason, now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("store: save stop adjustment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasAdjustmentToken implements trailingstop.StateRepository's idempotency
// check against the stop_adjustments table.
func HasAdjustmentToken(ctx context.Context, db *sql.DB, token string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM stop_adjustments WHERE adjustment_token = ?`, token).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check adjustment token: %w", err)
	}
	return true, nil
}

// RecordEntryGateDecision persists one EntryGate guard outcome (C7) for
// audit/replay, the way a compliance reviewer would want to see why a trade
// was or wasn't allowed through the gate at a given moment.
func RecordEntryGateDecision(ctx context.Context, db *sql.DB, tenantID int64, symbol string, allowed bool, reasons []string, details map[string]any, now time.Time) error {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("store: marshal entry gate reasons: %w", err)
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("store: marshal entry gate details: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO entry_gate_decisions (tenant_id, symbol, allowed, reasons, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tenantID, symbol, boolToInt(allowed), string(reasonsJSON), string(detailsJSON), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: record entry gate decision: %w", err)
	}
	return nil
}

// EntryGateDecisionRow is one persisted EntryGate outcome.
type EntryGateDecisionRow struct {
	ID        int64
	TenantID  int64
	Symbol    string
	Allowed   bool
	Reasons   []string
	Details   map[string]any
	CreatedAt time.Time
}

// ListEntryGateDecisions returns a tenant's most recent EntryGate outcomes
// for a symbol, newest first.
func ListEntryGateDecisions(ctx context.Context, db *sql.DB, tenantID int64, symbol string, limit int) ([]EntryGateDecisionRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, tenant_id, symbol, allowed, reasons, details, created_at FROM entry_gate_decisions
		 WHERE tenant_id = ? AND symbol = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list entry gate decisions: %w", err)
	}
	defer rows.Close()

	var out []EntryGateDecisionRow
	for rows.Next() {
		var r EntryGateDecisionRow
		var allowed int
		var reasonsJSON, detailsJSON string
		var createdAtMillis int64
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Symbol, &allowed, &reasonsJSON, &detailsJSON, &createdAtMillis); err != nil {
			return nil, fmt.Errorf("store: scan entry gate decision: %w", err)
		}
		r.Allowed = allowed != 0
		if err := json.Unmarshal([]byte(reasonsJSON), &r.Reasons); err != nil {
			return nil, fmt.Errorf("store: unmarshal entry gate reasons: %w", err)
		}
		if err := json.Unmarshal([]byte(detailsJSON), &r.Details); err != nil {
			return nil, fmt.Errorf("store: unmarshal entry gate details: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdAtMillis)
		out = append(out, r)
	}
	return out, rows.Err()
}
