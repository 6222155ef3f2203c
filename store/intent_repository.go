package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/intent"
)

// IntentRepository adapts the sqlite trading_intents table to
// intent.Repository.
type IntentRepository struct{ DB *sql.DB }

func (r IntentRepository) Save(ctx context.Context, i *intent.TradingIntent) error {
	validationJSON, err := marshalNullable(i.ValidationResult)
	if err != nil {
		return err
	}
	executionJSON, err := marshalNullable(i.ExecutionResult)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO trading_intents (
			intent_id, tenant_id, symbol_id, strategy_id, side, status, quantity,
			entry_price, stop_price, target_price, capital, risk_amount, risk_percent,
			regime, confidence, reason, validated_at, executed_at, validation_result,
			execution_result, error_message, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(intent_id) DO UPDATE SET
			status=excluded.status, validated_at=excluded.validated_at,
			executed_at=excluded.executed_at, validation_result=excluded.validation_result,
			execution_result=excluded.execution_result, error_message=excluded.error_message
	`,
		i.IntentID, i.TenantID, i.SymbolID, i.StrategyID, string(i.Side), string(i.Status), i.Quantity.String(),
		i.EntryPrice.String(), i.StopPrice.String(), nullableDecimalString(i.TargetPrice), i.Capital.String(),
		i.RiskAmount.String(), i.RiskPercent.String(), i.Regime, i.Confidence, i.Reason,
		nullableInt64(i.ValidatedAt), nullableInt64(i.ExecutedAt), validationJSON, executionJSON, i.ErrorMessage,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save intent: %w", err)
	}
	return nil
}

func (r IntentRepository) GetByIntentID(ctx context.Context, intentID string, tenantID int64) (*intent.TradingIntent, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT intent_id, tenant_id, symbol_id, strategy_id, side, status, quantity, entry_price,
			stop_price, target_price, capital, risk_amount, risk_percent, regime, confidence, reason,
			validated_at, executed_at, validation_result, execution_result, error_message
		FROM trading_intents WHERE intent_id = ? AND tenant_id = ?`, intentID, tenantID)
	return scanIntent(row)
}

func (r IntentRepository) ListByTenant(ctx context.Context, tenantID int64, filter intent.ListFilter) ([]*intent.TradingIntent, error) {
	query := `SELECT intent_id, tenant_id, symbol_id, strategy_id, side, status, quantity, entry_price,
			stop_price, target_price, capital, risk_amount, risk_percent, regime, confidence, reason,
			validated_at, executed_at, validation_result, execution_result, error_message
		FROM trading_intents WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.StrategyID != nil {
		query += " AND strategy_id = ?"
		args = append(args, *filter.StrategyID)
	}
	if filter.SymbolID != nil {
		query += " AND symbol_id = ?"
		args = append(args, *filter.SymbolID)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list intents: %w", err)
	}
	defer rows.Close()

	var out []*intent.TradingIntent
	for rows.Next() {
		i, err := scanIntentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanIntent(row scannable) (*intent.TradingIntent, error) {
	return scanIntentRow(row)
}

func scanIntentRow(row scannable) (*intent.TradingIntent, error) {
	var i intent.TradingIntent
	var side, status, qty, entry, stop, capital, riskAmount, riskPercent string
	var targetPrice, validationJSON, executionJSON sql.NullString
	var validatedAt, executedAt sql.NullInt64

	err := row.Scan(
		&i.IntentID, &i.TenantID, &i.SymbolID, &i.StrategyID, &side, &status, &qty, &entry, &stop,
		&targetPrice, &capital, &riskAmount, &riskPercent, &i.Regime, &i.Confidence, &i.Reason,
		&validatedAt, &executedAt, &validationJSON, &executionJSON, &i.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: intent not found: %w", err)
		}
		return nil, fmt.Errorf("store: scan intent: %w", err)
	}

	i.Side = exchange.Side(side)
	i.Status = intent.Status(status)
	i.Quantity = decimal.RequireFromString(qty)
	i.EntryPrice = decimal.RequireFromString(entry)
	i.StopPrice = decimal.RequireFromString(stop)
	i.Capital = decimal.RequireFromString(capital)
	i.RiskAmount = decimal.RequireFromString(riskAmount)
	i.RiskPercent = decimal.RequireFromString(riskPercent)

	if targetPrice.Valid {
		d := decimal.RequireFromString(targetPrice.String)
		i.TargetPrice = &d
	}
	if validatedAt.Valid {
		i.ValidatedAt = &validatedAt.Int64
	}
	if executedAt.Valid {
		i.ExecutedAt = &executedAt.Int64
	}
	if validationJSON.Valid {
		var m map[string]any
		if err := json.Unmarshal([]byte(validationJSON.String), &m); err == nil {
			i.ValidationResult = m
		}
	}
	if executionJSON.Valid {
		var m map[string]any
		if err := json.Unmarshal([]byte(executionJSON.String), &m); err == nil {
			i.ExecutionResult = m
		}
	}

	return &i, nil
}

func marshalNullable(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("store: marshal json column: %w", err)
	}
	s := string(b)
	return &s, nil
}

func nullableDecimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func nullableInt64(v *int64) *int64 {
	return v
}

// symbolRepositoryAdapter makes SymbolStore satisfy intent.SymbolRepository.
type symbolRepositoryAdapter struct{ Store SymbolStore }

func NewIntentSymbolRepository(store SymbolStore) intent.SymbolRepository {
	return symbolRepositoryAdapter{Store: store}
}

func (a symbolRepositoryAdapter) GetByID(ctx context.Context, symbolID, tenantID int64) (intent.Symbol, error) {
	row, err := a.Store.GetByID(ctx, symbolID, tenantID)
	if err != nil {
		return intent.Symbol{}, err
	}
	return intent.Symbol{ID: row.ID, Ticker: row.Name}, nil
}

// strategyRepositoryAdapter makes StrategyStore satisfy intent.StrategyRepository.
type strategyRepositoryAdapter struct{ Store StrategyStore }

func NewIntentStrategyRepository(store StrategyStore) intent.StrategyRepository {
	return strategyRepositoryAdapter{Store: store}
}

func (a strategyRepositoryAdapter) GetByID(ctx context.Context, strategyID, tenantID int64) (intent.Strategy, error) {
	row, err := a.Store.GetByID(ctx, strategyID, tenantID)
	if err != nil {
		return intent.Strategy{}, err
	}
	return intent.Strategy{ID: row.ID, Name: row.Name}, nil
}

var _ intent.Repository = IntentRepository{}
