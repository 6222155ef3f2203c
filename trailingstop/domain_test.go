package trailingstop

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradingcore/exchange"
)

func TestCalculateBreakEven_Long(t *testing.T) {
	be := CalculateBreakEven(exchange.Buy, decimal.NewFromInt(50000), DefaultFeeConfig())
	// entry * (1 + 0.15/100) = 50000 * 1.0015 = 50075
	assert.True(t, be.Equal(decimal.NewFromFloat(50075)), "got %s", be)
}

func TestCalculateBreakEven_Short(t *testing.T) {
	be := CalculateBreakEven(exchange.Sell, decimal.NewFromInt(50000), DefaultFeeConfig())
	// entry / (1 + 0.15/100)
	expected := decimal.NewFromInt(50000).Div(decimal.NewFromFloat(1.0015))
	assert.True(t, be.Equal(expected), "got %s want %s", be, expected)
}

func TestSpansInProfit_Long(t *testing.T) {
	s := TrailingStopState{
		Side: exchange.Buy, EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000),
		CurrentPrice: decimal.NewFromInt(52500), // 2.5 spans of 1000
	}
	assert.Equal(t, int64(2), s.SpansInProfit())
}

func TestSpansInProfit_NoneWhenUnderwater(t *testing.T) {
	s := TrailingStopState{
		Side: exchange.Buy, EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000),
		CurrentPrice: decimal.NewFromInt(49500),
	}
	assert.Equal(t, int64(0), s.SpansInProfit())
}

func TestValidateState_DetectsLongMonotonicityBug(t *testing.T) {
	s := TrailingStopState{
		Side: exchange.Buy, EntryPrice: decimal.NewFromInt(50000),
		InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(48000),
	}
	assert.Error(t, s.ValidateState())
}

func TestValidateState_OKWhenConsistent(t *testing.T) {
	s := TrailingStopState{
		Side: exchange.Buy, EntryPrice: decimal.NewFromInt(50000),
		InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(49500),
	}
	assert.NoError(t, s.ValidateState())
}
