package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/operation"
)

// OperationRepository adapts the sqlite operations table to
// operation.Repository.
type OperationRepository struct{ DB *sql.DB }

func (r OperationRepository) GetByIDForTenant(ctx context.Context, id, tenantID int64) (*operation.Operation, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, tenant_id, symbol, strategy, side, status, stop_price, target_price, entry_price,
			quantity, is_margin, leverage, entry_order_ids, exit_order_ids, opened_at, closed_at
		FROM operations WHERE id = ? AND tenant_id = ?`, id, tenantID)
	return scanOperation(row)
}

func (r OperationRepository) Save(ctx context.Context, op *operation.Operation) error {
	entryIDs, err := json.Marshal(op.EntryOrderIDs)
	if err != nil {
		return fmt.Errorf("store: marshal entry order ids: %w", err)
	}
	exitIDs, err := json.Marshal(op.ExitOrderIDs)
	if err != nil {
		return fmt.Errorf("store: marshal exit order ids: %w", err)
	}

	var leverage *string
	if !op.Leverage.IsZero() {
		s := op.Leverage.String()
		leverage = &s
	}
	var targetPrice *string
	if op.TargetPrice != nil {
		s := op.TargetPrice.String()
		targetPrice = &s
	}
	var closedAt *int64
	if op.ClosedAt != nil {
		ms := op.ClosedAt.UnixMilli()
		closedAt = &ms
	}

	if op.ID == 0 {
		res, err := r.DB.ExecContext(ctx, `
			INSERT INTO operations (tenant_id, symbol, strategy, side, status, stop_price, target_price,
				entry_price, quantity, is_margin, leverage, entry_order_ids, exit_order_ids, opened_at, closed_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			op.TenantID, op.Symbol, op.Strategy, string(op.Side), string(op.Status), op.StopPrice.String(),
			targetPrice, op.EntryPrice.String(), op.Quantity.String(), boolToInt(op.IsMargin), leverage,
			string(entryIDs), string(exitIDs), op.OpenedAt.UnixMilli(), closedAt,
		)
		if err != nil {
			return fmt.Errorf("store: create operation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		op.ID = id
		return nil
	}

	_, err = r.DB.ExecContext(ctx, `
		UPDATE operations SET status=?, stop_price=?, target_price=?, entry_price=?, quantity=?,
			entry_order_ids=?, exit_order_ids=?, closed_at=? WHERE id = ? AND tenant_id = ?`,
		string(op.Status), op.StopPrice.String(), targetPrice, op.EntryPrice.String(), op.Quantity.String(),
		string(entryIDs), string(exitIDs), closedAt, op.ID, op.TenantID,
	)
	if err != nil {
		return fmt.Errorf("store: update operation: %w", err)
	}
	return nil
}

func (r OperationRepository) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*operation.Operation, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, tenant_id, symbol, strategy, side, status, stop_price, target_price, entry_price,
			quantity, is_margin, leverage, entry_order_ids, exit_order_ids, opened_at, closed_at
		FROM operations WHERE tenant_id = ? AND status = ?`, tenantID, string(operation.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("store: list active operations: %w", err)
	}
	defer rows.Close()

	var out []*operation.Operation
	for rows.Next() {
		op, err := scanOperationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func scanOperation(row scannable) (*operation.Operation, error) {
	op, err := scanOperationRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, operation.ErrNotFound
		}
		return nil, err
	}
	return op, nil
}

func scanOperationRow(row scannable) (*operation.Operation, error) {
	var op operation.Operation
	var side, status, stopPrice, entryPrice, quantity string
	var targetPrice, leverage sql.NullString
	var entryIDsJSON, exitIDsJSON string
	var isMargin int
	var openedAt int64
	var closedAt sql.NullInt64

	err := row.Scan(&op.ID, &op.TenantID, &op.Symbol, &op.Strategy, &side, &status, &stopPrice, &targetPrice,
		&entryPrice, &quantity, &isMargin, &leverage, &entryIDsJSON, &exitIDsJSON, &openedAt, &closedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan operation: %w", err)
	}

	op.Side = exchange.Side(side)
	op.Status = operation.Status(status)
	op.StopPrice = decimal.RequireFromString(stopPrice)
	op.EntryPrice = decimal.RequireFromString(entryPrice)
	op.Quantity = decimal.RequireFromString(quantity)
	op.IsMargin = isMargin != 0
	op.OpenedAt = time.UnixMilli(openedAt)

	if targetPrice.Valid {
		d := decimal.RequireFromString(targetPrice.String)
		op.TargetPrice = &d
	}
	if leverage.Valid {
		op.Leverage = decimal.RequireFromString(leverage.String)
	}
	if closedAt.Valid {
		t := time.UnixMilli(closedAt.Int64)
		op.ClosedAt = &t
	}
	if err := json.Unmarshal([]byte(entryIDsJSON), &op.EntryOrderIDs); err != nil {
		return nil, fmt.Errorf("store: decode entry order ids: %w", err)
	}
	if err := json.Unmarshal([]byte(exitIDsJSON), &op.ExitOrderIDs); err != nil {
		return nil, fmt.Errorf("store: decode exit order ids: %w", err)
	}

	return &op, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ operation.Repository = OperationRepository{}
