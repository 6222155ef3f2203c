// Package policy implements the per-tenant per-month risk accounting record
// (spec §4.9, C9): ACTIVE/PAUSED/SUSPENDED state machine, atomic breach
// detection on every trade close, and the hard auto-pause at 4% monthly
// drawdown.
package policy

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/metrics"
)

// Status is the PolicyState lifecycle (spec §4.9).
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusSuspended Status = "SUSPENDED"
)

const (
	DefaultMaxDrawdownPercent = 4.0
	DefaultMaxTradesPerDay    = 50
)

// State is one tenant's policy record for one (year, month) (spec §3).
type State struct {
	TenantID         int64
	Year             int
	Month            int
	Status           Status
	StartingCapital  decimal.Decimal
	CurrentCapital   decimal.Decimal
	RealizedPnL      decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	TradeCount       int
	WinCount         int
	LossCount        int
	MaxDrawdownPercent decimal.Decimal
	MaxTradesPerDay  int
	PausedAt         *time.Time
	PauseReason      string
}

// NewState creates a fresh ACTIVE state for a new (tenant, month), applying
// spec defaults.
func NewState(tenantID int64, year, month int, startingCapital decimal.Decimal) *State {
	return &State{
		TenantID:           tenantID,
		Year:               year,
		Month:              month,
		Status:             StatusActive,
		StartingCapital:    startingCapital,
		CurrentCapital:     startingCapital,
		MaxDrawdownPercent: decimal.NewFromFloat(DefaultMaxDrawdownPercent),
		MaxTradesPerDay:    DefaultMaxTradesPerDay,
	}
}

// DrawdownPercent is (starting_capital - current_capital)/starting_capital*100
// (spec §3 invariant). Negative means the account is up, not down.
func (s *State) DrawdownPercent() decimal.Decimal {
	if s.StartingCapital.IsZero() {
		return decimal.Zero
	}
	return s.StartingCapital.Sub(s.CurrentCapital).Div(s.StartingCapital).Mul(decimal.NewFromInt(100))
}

// breach re-checks drawdown and, if the limit is reached while still ACTIVE,
// flips to PAUSED atomically with the caller's mutation (spec §4.9 /
// §5 "writes re-validate drawdown within the transaction").
func (s *State) breach(now time.Time) {
	if s.Status != StatusActive {
		return
	}
	dd := s.DrawdownPercent()
	if dd.GreaterThanOrEqual(s.MaxDrawdownPercent) {
		s.Status = StatusPaused
		s.PausedAt = &now
		s.PauseReason = fmt.Sprintf("monthly drawdown %s%% reached limit %s%%", dd.StringFixed(2), s.MaxDrawdownPercent.StringFixed(2))
		metrics.RecordPolicyAutoPause(strconv.FormatInt(s.TenantID, 10))
	}
	ddFloat, _ := dd.Float64()
	metrics.UpdatePolicyMetrics(strconv.FormatInt(s.TenantID, 10), string(s.Status), ddFloat)
}

// RecordTrade atomically updates counters, realized P&L and current capital,
// re-validating the drawdown breach as part of the same write (spec §4.9).
func (s *State) RecordTrade(pnl decimal.Decimal, isWinner bool, now time.Time) {
	s.RealizedPnL = s.RealizedPnL.Add(pnl)
	s.CurrentCapital = s.CurrentCapital.Add(pnl)
	s.TradeCount++
	if isWinner {
		s.WinCount++
	} else {
		s.LossCount++
	}
	s.breach(now)
}

// UpdateUnrealizedPnL is called periodically from the live position tracker
// (spec §4.9); unrealized losses can pause the tenant just like realized
// ones.
func (s *State) UpdateUnrealizedPnL(pnl decimal.Decimal, now time.Time) {
	s.UnrealizedPnL = pnl
	effectiveCapital := s.CurrentCapital.Add(pnl)
	saved := s.CurrentCapital
	wasActive := s.Status == StatusActive
	s.CurrentCapital = effectiveCapital
	s.breach(now)
	// Only realized capital persists as CurrentCapital; unrealized P&L is a
	// projection for the breach check. The one exception is the call that
	// pauses the tenant: it keeps the breaching capital as a snapshot.
	if !(wasActive && s.Status == StatusPaused) {
		s.CurrentCapital = saved
	}
}

// Pause is a manual ACTIVE->PAUSED transition (spec §4.9).
func (s *State) Pause(reason string, now time.Time) error {
	if s.Status != StatusActive {
		return fmt.Errorf("policy: cannot pause from status %s", s.Status)
	}
	s.Status = StatusPaused
	s.PausedAt = &now
	s.PauseReason = reason
	return nil
}

// Resume is a manual PAUSED->ACTIVE transition (spec §4.9).
func (s *State) Resume() error {
	if s.Status != StatusPaused {
		return fmt.Errorf("policy: cannot resume from status %s", s.Status)
	}
	s.Status = StatusActive
	s.PausedAt = nil
	s.PauseReason = ""
	return nil
}

// Suspend is an admin ACTIVE->SUSPENDED transition (spec §4.9).
func (s *State) Suspend(reason string, now time.Time) error {
	if s.Status != StatusActive {
		return fmt.Errorf("policy: cannot suspend from status %s", s.Status)
	}
	s.Status = StatusSuspended
	s.PausedAt = &now
	s.PauseReason = reason
	return nil
}

// Unsuspend is an admin SUSPENDED->ACTIVE transition (spec §4.9).
func (s *State) Unsuspend() error {
	if s.Status != StatusSuspended {
		return fmt.Errorf("policy: cannot unsuspend from status %s", s.Status)
	}
	s.Status = StatusActive
	s.PausedAt = nil
	s.PauseReason = ""
	return nil
}

// RollMonth creates a fresh ACTIVE state for the next month, seeded with the
// prior month's ending capital (spec §3: "month boundary rolls create a
// fresh state").
func (s *State) RollMonth(year, month int) *State {
	next := NewState(s.TenantID, year, month, s.CurrentCapital)
	next.MaxDrawdownPercent = s.MaxDrawdownPercent
	next.MaxTradesPerDay = s.MaxTradesPerDay
	return next
}
