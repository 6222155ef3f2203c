// Package sizing implements Position Sizing (spec §4.5, C5): a pure
// function from (capital, entry, stop) to a quantity that enforces the 1%
// risk rule and the hard 50%-of-capital cap. The margin variant (spec C14)
// reuses Size and then applies leverage before the same cap.
package sizing

import (
	"github.com/shopspring/decimal"

	"tradingcore/money"
)

const defaultMaxRiskPercent = 1.0

// maxPositionFraction is the hard cap: no position may exceed half of
// capital regardless of how tight the stop (spec §4.5).
var maxPositionFraction = decimal.NewFromFloat(0.5)

// Result is the full C5 output.
type Result struct {
	Quantity        decimal.Decimal
	PositionValue   decimal.Decimal
	RiskAmount      decimal.Decimal
	RiskPercent     decimal.Decimal
	StopDistance    decimal.Decimal
	StopDistancePct decimal.Decimal
	IsCapped        bool
	Failed          bool
	FailReason      string
}

// Size computes quantity = risk_amount / stop_distance, quantized to 8
// decimals, then applies the 50%-of-capital hard cap. maxRiskPercent
// defaults to 1.0 when zero.
func Size(capital, entry, stop decimal.Decimal, maxRiskPercent decimal.Decimal) Result {
	if maxRiskPercent.IsZero() {
		maxRiskPercent = decimal.NewFromFloat(defaultMaxRiskPercent)
	}

	stopDistance := entry.Sub(stop).Abs()
	if stopDistance.IsZero() {
		return Result{Failed: true, FailReason: "stop_price equals entry_price"}
	}

	riskAmount := money.PercentOf(capital, maxRiskPercent)
	qty := money.Quantize8(riskAmount.Div(stopDistance))

	positionValue := qty.Mul(entry)
	capped := false
	maxPositionValue := capital.Mul(maxPositionFraction)
	if positionValue.GreaterThan(maxPositionValue) && !entry.IsZero() {
		qty = money.Quantize8(maxPositionValue.Div(entry))
		positionValue = qty.Mul(entry)
		capped = true
	}

	actualRiskAmount := qty.Mul(stopDistance)
	riskPercent := decimal.Zero
	if !capital.IsZero() {
		riskPercent = actualRiskAmount.Div(capital).Mul(decimal.NewFromInt(100))
	}
	stopDistancePct := decimal.Zero
	if !entry.IsZero() {
		stopDistancePct = stopDistance.Div(entry).Mul(decimal.NewFromInt(100))
	}

	return Result{
		Quantity:        qty,
		PositionValue:   positionValue,
		RiskAmount:      actualRiskAmount,
		RiskPercent:     riskPercent,
		StopDistance:    stopDistance,
		StopDistancePct: stopDistancePct,
		IsCapped:        capped,
	}
}

// SizeMargin is the C14 margin variant: size at 1x leverage, multiply by
// leverage, then apply the 50%-of-own-capital cap (the cap applies to the
// trader's own capital, not the borrowed notional — spec §4.5).
func SizeMargin(capital, entry, stop decimal.Decimal, maxRiskPercent decimal.Decimal, leverage decimal.Decimal) Result {
	base := Size(capital, entry, stop, maxRiskPercent)
	if base.Failed {
		return base
	}
	if leverage.LessThanOrEqual(decimal.Zero) {
		leverage = decimal.NewFromInt(1)
	}

	qty := money.Quantize8(base.Quantity.Mul(leverage))
	positionValue := qty.Mul(entry)

	capped := base.IsCapped
	maxPositionValue := capital.Mul(maxPositionFraction)
	if positionValue.GreaterThan(maxPositionValue) && !entry.IsZero() {
		qty = money.Quantize8(maxPositionValue.Div(entry))
		positionValue = qty.Mul(entry)
		capped = true
	}

	stopDistance := base.StopDistance
	actualRiskAmount := qty.Mul(stopDistance)
	riskPercent := decimal.Zero
	if !capital.IsZero() {
		riskPercent = actualRiskAmount.Div(capital).Mul(decimal.NewFromInt(100))
	}

	return Result{
		Quantity:        qty,
		PositionValue:   positionValue,
		RiskAmount:      actualRiskAmount,
		RiskPercent:     riskPercent,
		StopDistance:    stopDistance,
		StopDistancePct: base.StopDistancePct,
		IsCapped:        capped,
	}
}
