package riskguard

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradingcore/exchange"
)

func TestRiskManagement_NoStopFails(t *testing.T) {
	g := RiskManagement(Context{Side: exchange.Buy, EntryPrice: decimal.NewFromInt(100)})
	assert.False(t, g.Passed)
}

func TestRiskManagement_WrongSideStopFails(t *testing.T) {
	stop := decimal.NewFromInt(101)
	g := RiskManagement(Context{Side: exchange.Buy, EntryPrice: decimal.NewFromInt(100), StopPrice: &stop})
	assert.False(t, g.Passed)
}

func TestRiskManagement_OverLimitRecommendsSafeQuantity(t *testing.T) {
	stop := decimal.NewFromInt(90)
	g := RiskManagement(Context{
		Side:       exchange.Buy,
		EntryPrice: decimal.NewFromInt(100),
		StopPrice:  &stop,
		Capital:    decimal.NewFromInt(1000),
		Quantity:   decimal.NewFromInt(5), // risk = 10*5=50 -> 5% > 1%
	})
	assert.False(t, g.Passed)
	assert.Contains(t, g.Details, "recommendation")
}

func TestMonthlyDrawdown_ForceOverridePasses(t *testing.T) {
	g := MonthlyDrawdown(Context{ForceOverride: true})
	assert.True(t, g.Passed)
}

func TestMonthlyDrawdown_BreachBlocks(t *testing.T) {
	g := MonthlyDrawdown(Context{
		Capital:    decimal.NewFromInt(10000),
		MonthlyPnL: decimal.NewFromInt(-500),
	})
	assert.False(t, g.Passed)
}

func TestTradeIntent_DryRunRelaxed(t *testing.T) {
	g := TradeIntent(Context{Mode: ModeDryRun})
	assert.True(t, g.Passed)
}

func TestTradeIntent_LiveRequiresConfirmation(t *testing.T) {
	g := TradeIntent(Context{Mode: ModeLive, StrategyName: "s1", Confirmed: false})
	assert.False(t, g.Passed)
}
