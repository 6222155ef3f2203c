package trailingstop

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradingcore/exchange"
)

func baseState(currentPrice decimal.Decimal) TrailingStopState {
	return TrailingStopState{
		PositionID:   "pos-1",
		Side:         exchange.Buy,
		EntryPrice:   decimal.NewFromInt(50000),
		InitialStop:  decimal.NewFromInt(49000),
		CurrentStop:  decimal.NewFromInt(49000),
		CurrentPrice: currentPrice,
		Fees:         DefaultFeeConfig(),
	}
}

func TestCalculate_ZeroSpansNoAdjustment(t *testing.T) {
	adj := HandSpanCalculator{}.Calculate(baseState(decimal.NewFromInt(50200)))
	assert.Equal(t, ReasonNoAdjustment, adj.Reason)
	assert.False(t, adj.IsAdjusted)
}

func TestCalculate_OneSpanMovesToBreakEven(t *testing.T) {
	adj := HandSpanCalculator{}.Calculate(baseState(decimal.NewFromInt(51000)))
	assert.Equal(t, ReasonBreakEven, adj.Reason)
	assert.True(t, adj.IsAdjusted)
	assert.True(t, adj.NewStop.Equal(decimal.NewFromFloat(50075)))
}

func TestCalculate_TwoSpansTrails(t *testing.T) {
	adj := HandSpanCalculator{}.Calculate(baseState(decimal.NewFromInt(52000)))
	assert.Equal(t, ReasonTrailing, adj.Reason)
	assert.Equal(t, int64(2), adj.StepIndex)
	// entry + (2-1)*1000 = 51000
	assert.True(t, adj.NewStop.Equal(decimal.NewFromInt(51000)))
}

func TestCalculate_MonotonicInvariantNeverLoosens(t *testing.T) {
	state := baseState(decimal.NewFromInt(51000))
	state.CurrentStop = decimal.NewFromInt(50500) // already ahead of the break-even candidate
	adj := HandSpanCalculator{}.Calculate(state)
	assert.True(t, adj.NewStop.Equal(decimal.NewFromInt(50500)), "must not loosen below current stop")
	assert.False(t, adj.IsAdjusted)
}

func TestCalculate_ShortMirrorsLong(t *testing.T) {
	state := TrailingStopState{
		PositionID: "pos-2", Side: exchange.Sell,
		EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(51000), CurrentStop: decimal.NewFromInt(51000),
		CurrentPrice: decimal.NewFromInt(48000), // 2 spans of 1000 favorable
		Fees:         DefaultFeeConfig(),
	}
	adj := HandSpanCalculator{}.Calculate(state)
	assert.Equal(t, ReasonTrailing, adj.Reason)
	// entry - (2-1)*1000 = 49000
	assert.True(t, adj.NewStop.Equal(decimal.NewFromInt(49000)))
}

func TestCalculate_Deterministic(t *testing.T) {
	state := baseState(decimal.NewFromInt(52500))
	a := HandSpanCalculator{}.Calculate(state)
	b := HandSpanCalculator{}.Calculate(state)
	assert.Equal(t, a, b)
}
