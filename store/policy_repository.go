package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"tradingcore/policy"
)

// PolicyRepository persists one PolicyState per (tenant, year, month).
type PolicyRepository struct{ DB *sql.DB }

func (r PolicyRepository) Get(ctx context.Context, tenantID int64, year, month int) (*policy.State, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT tenant_id, year, month, status, starting_capital, current_capital, realized_pnl,
			unrealized_pnl, trade_count, win_count, loss_count, max_drawdown_percent, max_trades_per_day,
			paused_at, pause_reason
		FROM policy_states WHERE tenant_id = ? AND year = ? AND month = ?`, tenantID, year, month)

	var s policy.State
	var status, startingCapital, currentCapital, realizedPnL, unrealizedPnL, maxDrawdown string
	var pausedAt sql.NullInt64
	var pauseReason sql.NullString

	err := row.Scan(&s.TenantID, &s.Year, &s.Month, &status, &startingCapital, &currentCapital, &realizedPnL,
		&unrealizedPnL, &s.TradeCount, &s.WinCount, &s.LossCount, &maxDrawdown, &s.MaxTradesPerDay,
		&pausedAt, &pauseReason)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan policy state: %w", err)
	}

	s.Status = policy.Status(status)
	s.StartingCapital = decimal.RequireFromString(startingCapital)
	s.CurrentCapital = decimal.RequireFromString(currentCapital)
	s.RealizedPnL = decimal.RequireFromString(realizedPnL)
	s.UnrealizedPnL = decimal.RequireFromString(unrealizedPnL)
	s.MaxDrawdownPercent = decimal.RequireFromString(maxDrawdown)
	if pauseReason.Valid {
		s.PauseReason = pauseReason.String
	}

	return &s, nil
}

func (r PolicyRepository) Save(ctx context.Context, s *policy.State) error {
	var pausedAt *int64
	if s.PausedAt != nil {
		ms := s.PausedAt.UnixMilli()
		pausedAt = &ms
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO policy_states (tenant_id, year, month, status, starting_capital, current_capital,
			realized_pnl, unrealized_pnl, trade_count, win_count, loss_count, max_drawdown_percent,
			max_trades_per_day, paused_at, pause_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tenant_id, year, month) DO UPDATE SET
			status=excluded.status, current_capital=excluded.current_capital,
			realized_pnl=excluded.realized_pnl, unrealized_pnl=excluded.unrealized_pnl,
			trade_count=excluded.trade_count, win_count=excluded.win_count, loss_count=excluded.loss_count,
			paused_at=excluded.paused_at, pause_reason=excluded.pause_reason`,
		s.TenantID, s.Year, s.Month, string(s.Status), s.StartingCapital.String(), s.CurrentCapital.String(),
		s.RealizedPnL.String(), s.UnrealizedPnL.String(), s.TradeCount, s.WinCount, s.LossCount,
		s.MaxDrawdownPercent.String(), s.MaxTradesPerDay, pausedAt, s.PauseReason,
	)
	if err != nil {
		return fmt.Errorf("store: save policy state: %w", err)
	}
	return nil
}
