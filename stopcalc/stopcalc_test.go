package stopcalc

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/exchange"
)

func candle(h, l, c float64, t time.Time) exchange.Kline {
	return exchange.Kline{
		OpenTime: t,
		High:     decimal.NewFromFloat(h),
		Low:      decimal.NewFromFloat(l),
		Close:    decimal.NewFromFloat(c),
		Open:     decimal.NewFromFloat(c),
	}
}

func TestCalculate_EmptyWindowFallsBackWithLowConfidence(t *testing.T) {
	res := Calculate(nil, decimal.NewFromInt(100), exchange.Buy, "1h", Params{})
	assert.Equal(t, MethodFallbackFixedPct, res.MethodUsed)
	assert.Equal(t, ConfidenceLow, res.Confidence)
	require.NotEmpty(t, res.Warnings)
}

func TestCalculate_Deterministic(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []exchange.Kline
	highs := []float64{100, 101, 102, 110, 103, 104, 105, 98, 99, 100, 120, 101, 102, 103, 104}
	for i, h := range highs {
		candles = append(candles, candle(h, h-5, h-1, base.Add(time.Duration(i)*time.Hour)))
	}

	r1 := Calculate(candles, decimal.NewFromInt(115), exchange.Buy, "1h", Params{LevelN: 1})
	r2 := Calculate(candles, decimal.NewFromInt(115), exchange.Buy, "1h", Params{LevelN: 1})
	assert.True(t, r1.StopPrice.Equal(r2.StopPrice))
	assert.Equal(t, r1.MethodUsed, r2.MethodUsed)
}

func TestCalculate_BuyStopBelowEntry(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []exchange.Kline
	for i := 0; i < 10; i++ {
		candles = append(candles, candle(100, 90, 95, base.Add(time.Duration(i)*time.Hour)))
	}
	res := Calculate(candles, decimal.NewFromInt(200), exchange.Buy, "1h", Params{})
	assert.True(t, res.StopPrice.LessThan(res.EntryPrice))
}
