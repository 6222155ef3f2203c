package trailingstop

import (
	"github.com/shopspring/decimal"

	"tradingcore/exchange"
)

// HandSpanCalculator implements the rules from spec §4.13.
type HandSpanCalculator struct{}

// Calculate computes the candidate new stop for the given state, without
// applying the monotonic floor/ceiling - callers combine this with the
// current stop via ApplyMonotonicInvariant, mirroring the two-step shape of
// the original use case (calculate, then validate against current state).
func (HandSpanCalculator) Calculate(state TrailingStopState) StopAdjustment {
	spans := state.SpansInProfit()

	adj := StopAdjustment{
		PositionID:    state.PositionID,
		PreviousStop:  state.CurrentStop,
		SpansInProfit: spans,
	}

	switch {
	case spans == 0:
		adj.Reason = ReasonNoAdjustment
		adj.NewStop = state.CurrentStop
		adj.IsAdjusted = false
		return adj
	case spans == 1:
		adj.Reason = ReasonBreakEven
		adj.NewStop = CalculateBreakEven(state.Side, state.EntryPrice, state.Fees)
	default:
		adj.Reason = ReasonTrailing
		adj.StepIndex = spans
		span := state.Span()
		steps := decimal.NewFromInt(spans - 1)
		if state.Side == exchange.Buy {
			adj.NewStop = state.EntryPrice.Add(steps.Mul(span))
		} else {
			adj.NewStop = state.EntryPrice.Sub(steps.Mul(span))
		}
	}

	adj.NewStop = applyMonotonicInvariant(state.Side, state.CurrentStop, adj.NewStop)
	adj.IsAdjusted = !adj.NewStop.Equal(state.CurrentStop)
	return adj
}

// applyMonotonicInvariant enforces "the stop NEVER loosens" (spec §4.13):
// max(current, candidate) for LONG, min(current, candidate) for SHORT.
func applyMonotonicInvariant(side exchange.Side, current, candidate decimal.Decimal) decimal.Decimal {
	if side == exchange.Buy {
		if candidate.GreaterThan(current) {
			return candidate
		}
		return current
	}
	if candidate.LessThan(current) {
		return candidate
	}
	return current
}
