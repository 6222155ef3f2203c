package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/exchange"
	"tradingcore/riskguard"
)

type fakeAuditor struct {
	recorded []Action
}

func (a *fakeAuditor) RecordAction(ctx context.Context, symbol string, act Action) {
	a.recorded = append(a.recorded, act)
}

func baseGuardCtx(mode riskguard.Mode) riskguard.Context {
	stop := decimal.NewFromInt(49000)
	return riskguard.Context{
		Mode:           mode,
		Side:           exchange.Buy,
		EntryPrice:     decimal.NewFromInt(50000),
		StopPrice:      &stop,
		Quantity:       decimal.NewFromFloat(0.01),
		Capital:        decimal.NewFromInt(1000),
		StrategyName:   "trend",
		Confirmed:      true,
		MaxRiskPercent: decimal.NewFromFloat(2.0),
	}
}

func TestExecute_DryRunHappyBuy(t *testing.T) {
	mem := exchange.NewMemory()
	audit := &fakeAuditor{}
	eng := Engine{Exchange: mem, Audit: audit, Now: func() time.Time { return time.Unix(0, 0) }}

	res := eng.Execute(context.Background(), Request{
		Mode:            ModeDryRun,
		Symbol:          "BTCUSDC",
		Side:            exchange.Buy,
		Quantity:        decimal.NewFromFloat(0.01),
		StopPrice:       decimal.NewFromInt(49000),
		GuardCtx:        baseGuardCtx(ModeDryRun),
		OpeningPosition: true,
	})

	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, ActionMarketBuy, res.Actions[0].Type)
	assert.Equal(t, ActionStopLoss, res.Actions[1].Type)
	assert.Empty(t, mem.PlacedOrders, "dry-run must never touch the exchange")
}

func TestExecute_BlockedWhenGuardFails(t *testing.T) {
	mem := exchange.NewMemory()
	eng := Engine{Exchange: mem}

	ctx := baseGuardCtx(ModeLive)
	ctx.StopPrice = nil // RiskManagement guard fails without a stop

	res := eng.Execute(context.Background(), Request{
		Mode:            ModeLive,
		Symbol:          "BTCUSDC",
		Side:            exchange.Buy,
		Quantity:        decimal.NewFromFloat(0.01),
		StopPrice:       decimal.NewFromInt(49000),
		GuardCtx:        ctx,
		OpeningPosition: true,
	})

	assert.Equal(t, StatusBlocked, res.Status)
	assert.Empty(t, res.Actions)
	assert.Empty(t, mem.PlacedOrders)
}

func TestExecute_LiveMarketFails(t *testing.T) {
	mem := exchange.NewMemory()
	mem.FailNextMarket = assert.AnError
	eng := Engine{Exchange: mem}

	res := eng.Execute(context.Background(), Request{
		Mode:            ModeLive,
		Symbol:          "BTCUSDC",
		Side:            exchange.Buy,
		Quantity:        decimal.NewFromFloat(0.01),
		StopPrice:       decimal.NewFromInt(49000),
		GuardCtx:        baseGuardCtx(ModeLive),
		OpeningPosition: true,
	})

	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.Error)
}

// TestExecute_StopLossFailsAfterMarketSucceeds is spec scenario 6: the
// position exists with no protective stop, which must still read SUCCESS
// with a hard warning, never silently rolled back.
func TestExecute_StopLossFailsAfterMarketSucceeds(t *testing.T) {
	mem := exchange.NewMemory()
	mem.FailNextStopLoss = assert.AnError
	audit := &fakeAuditor{}
	eng := Engine{Exchange: mem, Audit: audit}

	res := eng.Execute(context.Background(), Request{
		Mode:            ModeLive,
		Symbol:          "BTCUSDC",
		Side:            exchange.Buy,
		Quantity:        decimal.NewFromFloat(0.01),
		StopPrice:       decimal.NewFromInt(49000),
		GuardCtx:        baseGuardCtx(ModeLive),
		OpeningPosition: true,
	})

	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, ActionMarketBuy, res.Actions[0].Type)
	assert.NotEmpty(t, res.Actions[0].OrderID)
	assert.Equal(t, ActionStopLossFailed, res.Actions[1].Type)
	assert.Equal(t, "Stop-loss order failed - set manually!", res.Metadata["warning"])
	assert.Len(t, mem.PlacedOrders, 1, "only the market order reached the exchange")
}

func TestExecute_ClosingTradeDoesNotRequireStop(t *testing.T) {
	mem := exchange.NewMemory()
	eng := Engine{Exchange: mem}

	ctx := baseGuardCtx(ModeLive)
	ctx.StopPrice = nil
	ctx.Side = exchange.Sell

	// RiskManagement will still fail without a stop; the OpeningPosition=false
	// contract only governs whether a stop-loss ORDER is placed after entry,
	// not whether the guard suite requires one - a closing trade caller
	// should pass a synthetic stop through guards or a relaxed guard ctx.
	// Here we confirm no STOP_LOSS action is appended on a closing trade.
	ctx.StopPrice = decimal_ptr(decimal.NewFromInt(51000))
	res := eng.Execute(context.Background(), Request{
		Mode:            ModeDryRun,
		Symbol:          "BTCUSDC",
		Side:            exchange.Sell,
		Quantity:        decimal.NewFromFloat(0.01),
		GuardCtx:        ctx,
		OpeningPosition: false,
	})

	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionMarketSell, res.Actions[0].Type)
}

func decimal_ptr(d decimal.Decimal) *decimal.Decimal { return &d }
