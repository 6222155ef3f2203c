// Package trailingstop implements the Hand-Span Trailing Stop (spec §4.13,
// C13), grounded directly on the original TrailingStopState/StopAdjustment
// domain model: discrete, monotonic stop adjustment in integer multiples of
// the entry-to-initial-stop span, idempotent via an adjustment token.
package trailingstop

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
)

// Reason is why (or why not) a stop was adjusted.
type Reason string

const (
	ReasonNoAdjustment Reason = "NO_ADJUSTMENT"
	ReasonBreakEven    Reason = "BREAK_EVEN"
	ReasonTrailing     Reason = "TRAILING"
)

// FeeConfig is the cost model folded into the break-even calculation (spec
// §4.13 defaults: 0.1% trading fee + 0.05% slippage buffer).
type FeeConfig struct {
	TradingFeePercent    decimal.Decimal
	SlippageBufferPercent decimal.Decimal
}

// DefaultFeeConfig matches spec §4.13's stated defaults.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		TradingFeePercent:     decimal.NewFromFloat(0.1),
		SlippageBufferPercent: decimal.NewFromFloat(0.05),
	}
}

func (f FeeConfig) totalPercent() decimal.Decimal {
	return f.TradingFeePercent.Add(f.SlippageBufferPercent)
}

// TrailingStopState is the input snapshot the calculator reasons over (spec
// §4.13, grounded on domain.py's TrailingStopState).
type TrailingStopState struct {
	PositionID    string
	Side          exchange.Side
	EntryPrice    decimal.Decimal
	InitialStop   decimal.Decimal
	CurrentStop   decimal.Decimal
	CurrentPrice  decimal.Decimal
	Fees          FeeConfig
}

// Span is |entry - initial_stop| (spec §4.13).
func (s TrailingStopState) Span() decimal.Decimal {
	return s.EntryPrice.Sub(s.InitialStop).Abs()
}

// SpansInProfit is how many whole spans price has moved in the position's
// favor, floored toward zero.
func (s TrailingStopState) SpansInProfit() int64 {
	span := s.Span()
	if span.IsZero() {
		return 0
	}
	var favorable decimal.Decimal
	if s.Side == exchange.Buy {
		favorable = s.CurrentPrice.Sub(s.EntryPrice)
	} else {
		favorable = s.EntryPrice.Sub(s.CurrentPrice)
	}
	if favorable.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	spans := favorable.Div(span).IntPart()
	return spans
}

// ValidateState returns an error if current_stop has already violated
// monotonicity relative to initial_stop - a store bug the caller MUST
// surface rather than paper over (spec §4.13).
func (s TrailingStopState) ValidateState() error {
	if s.Side == exchange.Buy && s.CurrentStop.LessThan(s.InitialStop) {
		return fmt.Errorf("trailingstop: current_stop %s is below initial_stop %s for a LONG position", s.CurrentStop, s.InitialStop)
	}
	if s.Side == exchange.Sell && s.CurrentStop.GreaterThan(s.InitialStop) {
		return fmt.Errorf("trailingstop: current_stop %s is above initial_stop %s for a SHORT position", s.CurrentStop, s.InitialStop)
	}
	return nil
}

// CalculateBreakEven applies fees+slippage on top of entry (spec §4.13):
// LONG multiplies up, SHORT divides down, so the break-even price still
// covers round-trip cost on a short that buys back cheaper.
func CalculateBreakEven(side exchange.Side, entryPrice decimal.Decimal, fees FeeConfig) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(fees.totalPercent().Div(decimal.NewFromInt(100)))
	if side == exchange.Buy {
		return entryPrice.Mul(factor)
	}
	return entryPrice.Div(factor)
}

// StopAdjustment is the result of one calculation (spec §4.13).
type StopAdjustment struct {
	PositionID      string
	NewStop         decimal.Decimal
	PreviousStop    decimal.Decimal
	Reason          Reason
	SpansInProfit   int64
	StepIndex       int64
	IsAdjusted      bool
	AdjustmentToken string
}
