package autoparam

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/exchange"
)

func seedCandles(mem *exchange.Memory, symbol string) {
	base := time.Unix(1700000000, 0)
	prices := []float64{100, 102, 98, 105, 95, 110, 90, 115, 85, 120, 80, 125, 75, 130, 70}
	var candles []exchange.Kline
	for i, p := range prices {
		d := decimal.NewFromFloat(p)
		candles = append(candles, exchange.Kline{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     d, High: d.Add(decimal.NewFromInt(1)), Low: d.Sub(decimal.NewFromInt(1)), Close: d,
			Volume: decimal.NewFromInt(1000),
		})
	}
	mem.Candles[symbol] = candles
}

func TestBuild_CapitalModeFixed(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Asks["BTCUSDC"] = decimal.NewFromInt(100)
	seedCandles(mem, "BTCUSDC")

	p := Pipeline{Exchange: mem, Market: mem}
	proposal, err := p.Build(context.Background(), 1, "BTCUSDC", StrategyConfig{
		DefaultSide: exchange.Buy, CapitalMode: CapitalFixed, CapitalFixed: decimal.NewFromInt(1000), Timeframe: "1h",
	}, 15)
	require.NoError(t, err)
	assert.Equal(t, SourceFixed, proposal.CapitalSource)
	assert.True(t, proposal.Capital.Equal(decimal.NewFromInt(1000)))
	assert.True(t, proposal.Quantity.GreaterThan(decimal.Zero))
}

func TestBuild_CapitalModeBalanceFallsBackOnFetchFailure(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Asks["BTCUSDC"] = decimal.NewFromInt(100)
	seedCandles(mem, "BTCUSDC")
	// Balances map left empty -> GetAvailableQuoteBalance returns zero, which
	// the pipeline must treat as a fallback trigger, never an exception.

	p := Pipeline{Exchange: mem, Market: mem}
	proposal, err := p.Build(context.Background(), 1, "BTCUSDC", StrategyConfig{
		DefaultSide: exchange.Buy, CapitalMode: CapitalBalance, CapitalFixed: decimal.NewFromInt(500),
		CapitalBalancePercent: decimal.NewFromInt(50), Timeframe: "1h",
	}, 15)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, proposal.CapitalSource)
	assert.True(t, proposal.Capital.Equal(decimal.NewFromInt(500)))
	assert.NotEmpty(t, proposal.Warnings)
}

func TestBuild_CapitalHardCeilingApplies(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Asks["BTCUSDC"] = decimal.NewFromInt(100)
	mem.Balances["USDC"] = decimal.NewFromInt(1_000_000)
	seedCandles(mem, "BTCUSDC")

	p := Pipeline{Exchange: mem, Market: mem}
	proposal, err := p.Build(context.Background(), 1, "BTCUSDC", StrategyConfig{
		DefaultSide: exchange.Buy, CapitalMode: CapitalBalance, CapitalFixed: decimal.NewFromInt(500),
		CapitalBalancePercent: decimal.NewFromInt(100), QuoteAsset: "USDC", Timeframe: "1h",
	}, 15)
	require.NoError(t, err)
	assert.True(t, proposal.Capital.LessThanOrEqual(decimal.NewFromInt(maxCapital)))
}

func TestBuild_CapitalBalancePercentOver100ClampsWithWarning(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Asks["BTCUSDC"] = decimal.NewFromInt(100)
	mem.Balances["USDC"] = decimal.NewFromInt(1000)
	seedCandles(mem, "BTCUSDC")

	p := Pipeline{Exchange: mem, Market: mem}
	proposal, err := p.Build(context.Background(), 1, "BTCUSDC", StrategyConfig{
		DefaultSide: exchange.Buy, CapitalMode: CapitalBalance, CapitalFixed: decimal.NewFromInt(500),
		CapitalBalancePercent: decimal.NewFromInt(150), QuoteAsset: "USDC", Timeframe: "1h",
	}, 15)
	require.NoError(t, err)
	assert.Equal(t, SourceBalance, proposal.CapitalSource)
	assert.True(t, proposal.Capital.Equal(decimal.NewFromInt(1000)), "150%% of balance should clamp to 100%%")
	assert.Contains(t, proposal.Warnings[0], "clamped to 100")
}

func TestBuild_CapitalBalancePercentNegativeClampsWithWarning(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Asks["BTCUSDC"] = decimal.NewFromInt(100)
	mem.Balances["USDC"] = decimal.NewFromInt(1000)
	seedCandles(mem, "BTCUSDC")

	p := Pipeline{Exchange: mem, Market: mem}
	proposal, err := p.Build(context.Background(), 1, "BTCUSDC", StrategyConfig{
		DefaultSide: exchange.Buy, CapitalMode: CapitalBalance, CapitalFixed: decimal.NewFromInt(500),
		CapitalBalancePercent: decimal.NewFromInt(-10), QuoteAsset: "USDC", Timeframe: "1h",
	}, 15)
	require.NoError(t, err)
	assert.Equal(t, SourceBalance, proposal.CapitalSource)
	assert.True(t, proposal.Capital.IsZero(), "-10%% of balance should clamp to 0%%")
	assert.Contains(t, proposal.Warnings[0], "clamped to 0")
}

func TestBuild_SideFromMarketBias(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Bids["BTCUSDC"] = decimal.NewFromInt(100)
	seedCandles(mem, "BTCUSDC")

	p := Pipeline{Exchange: mem, Market: mem}
	proposal, err := p.Build(context.Background(), 1, "BTCUSDC", StrategyConfig{
		MarketBias: BiasBearish, CapitalMode: CapitalFixed, CapitalFixed: decimal.NewFromInt(1000), Timeframe: "1h",
	}, 15)
	require.NoError(t, err)
	assert.Equal(t, exchange.Sell, proposal.Side)
	assert.Equal(t, "market_bias", proposal.SideSource)
}

func TestBuild_EmptyCandleWindowFallsBackWithLowConfidence(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Asks["BTCUSDC"] = decimal.NewFromInt(100)
	// No candles seeded.

	p := Pipeline{Exchange: mem, Market: mem}
	proposal, err := p.Build(context.Background(), 1, "BTCUSDC", StrategyConfig{
		DefaultSide: exchange.Buy, CapitalMode: CapitalFixed, CapitalFixed: decimal.NewFromInt(1000), Timeframe: "1h",
	}, 15)
	require.NoError(t, err)
	assert.Equal(t, 0.4, proposal.ConfidenceFloat)
	assert.NotEmpty(t, proposal.Warnings)
}
