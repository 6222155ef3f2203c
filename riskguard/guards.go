// Package riskguard implements the stateless checks that block execution
// (spec §4.7, C7): RiskManagement, MonthlyDrawdown, TradeIntent and
// EntryGateConfig. None of them mutate state; each is a pure function over a
// Context.
package riskguard

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/money"
)

// Mode mirrors execution.Mode without importing it, to keep this package
// dependency-free of the execution engine it is used by.
type Mode string

const (
	ModeDryRun Mode = "DRY_RUN"
	ModeLive   Mode = "LIVE"
)

// Guard is a single check's outcome (spec §4.7: "(name, passed, message,
// details)").
type Guard struct {
	Name    string
	Passed  bool
	Message string
	Details map[string]any
}

// Context is the read-only bag every guard inspects. Only the fields a given
// guard needs must be populated.
type Context struct {
	Mode Mode

	Side       exchange.Side
	EntryPrice decimal.Decimal
	StopPrice  *decimal.Decimal
	Quantity   decimal.Decimal
	Capital    decimal.Decimal

	MaxRiskPercent decimal.Decimal

	TenantID int64
	Now      time.Time

	// MonthlyDrawdown inputs.
	MonthlyPnL         decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	ForceOverride      bool

	// TradeIntent inputs.
	StrategyName        string
	Confirmed           bool
	EmotionalCheckPassed *bool

	// EntryGateConfig inputs.
	EntryGate EntryGateConfig
}

// EntryGateConfig toggles the three sub-checks per tenant (spec §4.7 +
// SPEC_FULL.md supplement).
type EntryGateConfig struct {
	CooldownEnabled  bool
	CooldownSeconds  int
	LastStopOutAt    *time.Time

	FundingEnabled   bool
	FundingRate      decimal.Decimal
	FundingThreshold decimal.Decimal

	StaleDataEnabled bool
	DataAgeSeconds   int
	MaxDataAgeSeconds int
}

const defaultMaxRiskPercent = 1.0
const defaultMaxDrawdownPercent = 4.0
const defaultCooldownSeconds = 900
const defaultMaxDataAgeSeconds = 300

// RiskManagement enforces the 1% rule: stop-loss must be present and on the
// right side of entry, and risk% must not exceed the cap. DRY_RUN still
// checks but spec §4.7 says this guard is NEVER relaxed in either mode.
func RiskManagement(ctx Context) Guard {
	maxRisk := ctx.MaxRiskPercent
	if maxRisk.IsZero() {
		maxRisk = decimal.NewFromFloat(defaultMaxRiskPercent)
	}

	if ctx.StopPrice == nil {
		return Guard{
			Name:    "RiskManagement",
			Passed:  false,
			Message: "stop-loss required: no trade without a defined stop-loss",
			Details: map[string]any{"rule": "1% Risk Rule"},
		}
	}
	stop := *ctx.StopPrice

	if ctx.Side == exchange.Buy && stop.GreaterThanOrEqual(ctx.EntryPrice) {
		return Guard{
			Name:    "RiskManagement",
			Passed:  false,
			Message: fmt.Sprintf("invalid stop-loss: for BUY, stop (%s) must be below entry (%s)", stop, ctx.EntryPrice),
		}
	}
	if ctx.Side == exchange.Sell && stop.LessThanOrEqual(ctx.EntryPrice) {
		return Guard{
			Name:    "RiskManagement",
			Passed:  false,
			Message: fmt.Sprintf("invalid stop-loss: for SELL, stop (%s) must be above entry (%s)", stop, ctx.EntryPrice),
		}
	}

	if ctx.Capital.IsZero() || ctx.Quantity.IsZero() {
		return Guard{
			Name:    "RiskManagement",
			Passed:  true,
			Message: "stop-loss defined (risk calculation skipped - missing capital/quantity)",
			Details: map[string]any{"stop_price": stop.String()},
		}
	}

	stopDistance := ctx.EntryPrice.Sub(stop).Abs()
	riskAmount := stopDistance.Mul(ctx.Quantity)
	riskPercent := riskAmount.Div(ctx.Capital).Mul(decimal.NewFromInt(100))

	if riskPercent.GreaterThan(maxRisk) {
		safeQty := safeQuantity(ctx.Capital, maxRisk, stopDistance)
		return Guard{
			Name:    "RiskManagement",
			Passed:  false,
			Message: fmt.Sprintf("risk too high: %s%% exceeds %s%% limit", riskPercent.StringFixed(2), maxRisk.StringFixed(2)),
			Details: map[string]any{
				"risk_percent":     riskPercent.String(),
				"max_risk_percent": maxRisk.String(),
				"risk_amount":      riskAmount.String(),
				"recommendation":   safeQty.String(),
			},
		}
	}

	return Guard{
		Name:    "RiskManagement",
		Passed:  true,
		Message: fmt.Sprintf("risk validated: %s%% (max %s%%)", riskPercent.StringFixed(2), maxRisk.StringFixed(2)),
		Details: map[string]any{
			"risk_percent":  riskPercent.String(),
			"risk_amount":   riskAmount.String(),
			"stop_price":    stop.String(),
			"stop_distance": stopDistance.String(),
		},
	}
}

// safeQuantity is the recommendation surfaced on failure (SPEC_FULL.md §C,
// grounded on risk_guards.py:_calculate_safe_quantity).
func safeQuantity(capital, maxRiskPercent, stopDistance decimal.Decimal) decimal.Decimal {
	if stopDistance.IsZero() {
		return decimal.Zero
	}
	maxRiskAmount := money.PercentOf(capital, maxRiskPercent)
	return money.Quantize8(maxRiskAmount.Div(stopDistance))
}

// MonthlyDrawdown fails if |monthly_pnl|/capital*100 >= max_drawdown_percent.
// ForceOverride passes with a loud warning (spec §4.7 + SPEC_FULL.md §C).
// NEVER relaxed in DRY_RUN (spec §4.7).
func MonthlyDrawdown(ctx Context) Guard {
	if ctx.ForceOverride {
		return Guard{
			Name:    "MonthlyDrawdown",
			Passed:  true,
			Message: "drawdown check OVERRIDDEN (emergency mode) - use with extreme caution",
			Details: map[string]any{"warning": "manual override active"},
		}
	}

	if ctx.Capital.IsZero() {
		return Guard{
			Name:    "MonthlyDrawdown",
			Passed:  true,
			Message: "cannot validate drawdown (capital not provided)",
		}
	}

	maxDrawdown := ctx.MaxDrawdownPercent
	if maxDrawdown.IsZero() {
		maxDrawdown = decimal.NewFromFloat(defaultMaxDrawdownPercent)
	}

	drawdownPercent := ctx.MonthlyPnL.Abs().Div(ctx.Capital).Mul(decimal.NewFromInt(100))
	if ctx.MonthlyPnL.GreaterThanOrEqual(decimal.Zero) {
		return Guard{
			Name:    "MonthlyDrawdown",
			Passed:  true,
			Message: "monthly P&L is non-negative, drawdown guard not applicable",
		}
	}

	if drawdownPercent.GreaterThanOrEqual(maxDrawdown) {
		return Guard{
			Name:    "MonthlyDrawdown",
			Passed:  false,
			Message: fmt.Sprintf("monthly drawdown %s%% breaches limit %s%% - trading paused", drawdownPercent.StringFixed(2), maxDrawdown.StringFixed(2)),
			Details: map[string]any{"drawdown_percent": drawdownPercent.String(), "max_drawdown_percent": maxDrawdown.String()},
		}
	}

	return Guard{
		Name:    "MonthlyDrawdown",
		Passed:  true,
		Message: fmt.Sprintf("monthly drawdown %s%% within limit %s%%", drawdownPercent.StringFixed(2), maxDrawdown.StringFixed(2)),
	}
}

// TradeIntent requires a non-empty strategy name and explicit confirmation
// in LIVE mode; DRY_RUN relaxes this one (spec §4.7).
func TradeIntent(ctx Context) Guard {
	if ctx.Mode != ModeLive {
		return Guard{Name: "TradeIntent", Passed: true, Message: "dry-run: trade intent check relaxed"}
	}
	if ctx.StrategyName == "" {
		return Guard{Name: "TradeIntent", Passed: false, Message: "strategy_name is required in LIVE mode"}
	}
	if !ctx.Confirmed {
		return Guard{Name: "TradeIntent", Passed: false, Message: "explicit confirmation required in LIVE mode"}
	}
	if ctx.EmotionalCheckPassed != nil && !*ctx.EmotionalCheckPassed {
		return Guard{Name: "TradeIntent", Passed: false, Message: "pre-computed emotional check failed"}
	}
	return Guard{Name: "TradeIntent", Passed: true, Message: "trade intent confirmed"}
}

// EntryGate runs the cooldown/funding/staleness sub-checks, each toggled
// per-tenant (spec §4.7 + SPEC_FULL.md §C).
func EntryGate(ctx Context) Guard {
	cfg := ctx.EntryGate
	var reasons []string
	details := map[string]any{}

	if cfg.CooldownEnabled && cfg.LastStopOutAt != nil {
		cooldown := cfg.CooldownSeconds
		if cooldown <= 0 {
			cooldown = defaultCooldownSeconds
		}
		elapsed := ctx.Now.Sub(*cfg.LastStopOutAt)
		if elapsed < time.Duration(cooldown)*time.Second {
			reasons = append(reasons, "cooldown active since last stop-out")
			details["cooldown_remaining_seconds"] = time.Duration(cooldown)*time.Second - elapsed
		}
	}

	if cfg.FundingEnabled {
		threshold := cfg.FundingThreshold
		if threshold.IsZero() {
			threshold = decimal.NewFromFloat(0.01)
		}
		if cfg.FundingRate.Abs().GreaterThan(threshold) {
			reasons = append(reasons, "funding rate outside sane bounds")
			details["funding_rate"] = cfg.FundingRate.String()
		}
	}

	if cfg.StaleDataEnabled {
		maxAge := cfg.MaxDataAgeSeconds
		if maxAge <= 0 {
			maxAge = defaultMaxDataAgeSeconds
		}
		if cfg.DataAgeSeconds > maxAge {
			reasons = append(reasons, "market data is stale")
			details["data_age_seconds"] = cfg.DataAgeSeconds
		}
	}

	if len(reasons) > 0 {
		return Guard{Name: "EntryGate", Passed: false, Message: reasons[0], Details: details}
	}
	return Guard{Name: "EntryGate", Passed: true, Message: "entry gate open"}
}

// RunAll runs every applicable guard and returns them all (no short-circuit,
// mirroring C8's "all validators run to completion").
func RunAll(ctx Context) []Guard {
	return []Guard{
		RiskManagement(ctx),
		MonthlyDrawdown(ctx),
		TradeIntent(ctx),
		EntryGate(ctx),
	}
}

// AllPassed reports whether every guard in the slice passed.
func AllPassed(guards []Guard) bool {
	for _, g := range guards {
		if !g.Passed {
			return false
		}
	}
	return true
}
