package margin

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/exchange"
)

func TestOpen_HappyPath(t *testing.T) {
	mem := exchange.NewMemory()
	res := Open(context.Background(), mem, OpenRequest{
		Symbol: "BTCUSDC", QuoteAsset: "USDC", Side: exchange.Buy,
		Quantity: decimal.NewFromFloat(0.05), StopPrice: decimal.NewFromInt(49000),
		TransferAmount: decimal.NewFromInt(1000),
	})
	require.True(t, res.Success)
	assert.False(t, res.StopLossFailed)
	assert.NotNil(t, res.StopOrder)
}

func TestOpen_StopLossFailureStillSucceeds(t *testing.T) {
	mem := exchange.NewMemory()
	mem.FailNextStopLoss = assert.AnError
	res := Open(context.Background(), mem, OpenRequest{
		Symbol: "BTCUSDC", QuoteAsset: "USDC", Side: exchange.Buy,
		Quantity: decimal.NewFromFloat(0.05), StopPrice: decimal.NewFromInt(49000),
		TransferAmount: decimal.NewFromInt(1000),
	})
	assert.True(t, res.Success)
	assert.True(t, res.StopLossFailed)
	assert.Nil(t, res.StopOrder)
}

func TestClose_HappyPath(t *testing.T) {
	mem := exchange.NewMemory()
	res := Close(context.Background(), mem, CloseRequest{
		Symbol: "BTCUSDC", QuoteAsset: "USDC", ClosingSide: exchange.Sell,
		Quantity: decimal.NewFromFloat(0.05), ResidualAmount: decimal.NewFromInt(50),
	})
	require.True(t, res.Success)
	assert.NoError(t, res.Err)
}

func TestMonitor_WarningLevel(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Balances["USDC"] = decimal.NewFromInt(100)
	// MarginAccount on Memory always returns 999, so set via a thin wrapper.
	m := Monitor{Port: &fakeClosable{level: decimal.NewFromFloat(1.3)}, Config: DefaultConfig(), Now: func() time.Time { return time.Unix(0, 0) }}
	alert, err := m.Check(context.Background(), Position{Symbol: "BTCUSDC", ClosingSide: exchange.Sell, Quantity: decimal.NewFromFloat(0.05)})
	require.NoError(t, err)
	assert.Equal(t, AlertWarning, alert.Level)
}

func TestMonitor_LiquidationTriggersDefensiveClose(t *testing.T) {
	closable := &fakeClosable{level: decimal.NewFromFloat(1.05)}
	m := Monitor{Port: closable, Config: DefaultConfig()}
	alert, err := m.Check(context.Background(), Position{Symbol: "BTCUSDC", ClosingSide: exchange.Sell, Quantity: decimal.NewFromFloat(0.05)})
	require.NoError(t, err)
	assert.Equal(t, AlertLiquidation, alert.Level)
	assert.Equal(t, 1, closable.closeCalls)
}

type fakeClosable struct {
	level      decimal.Decimal
	closeCalls int
}

func (f *fakeClosable) GetMarginLevel(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.level, nil
}

func (f *fakeClosable) PlaceMarket(ctx context.Context, symbol string, side exchange.Side, qty decimal.Decimal) (exchange.OrderResult, error) {
	f.closeCalls++
	return exchange.OrderResult{OrderID: "close-1"}, nil
}
