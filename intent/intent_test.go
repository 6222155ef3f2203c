package intent

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/exchange"
)

type fakeSymbols struct{}

func (fakeSymbols) GetByID(ctx context.Context, symbolID, tenantID int64) (Symbol, error) {
	return Symbol{ID: symbolID, Ticker: "BTCUSDC"}, nil
}

type fakeStrategies struct{}

func (fakeStrategies) GetByID(ctx context.Context, strategyID, tenantID int64) (Strategy, error) {
	return Strategy{ID: strategyID, Name: "trend"}, nil
}

type fakeRepo struct {
	saved []*TradingIntent
}

func (r *fakeRepo) Save(ctx context.Context, i *TradingIntent) error {
	r.saved = append(r.saved, i)
	return nil
}

func (r *fakeRepo) GetByIntentID(ctx context.Context, intentID string, tenantID int64) (*TradingIntent, error) {
	for _, i := range r.saved {
		if i.IntentID == intentID && i.TenantID == tenantID {
			return i, nil
		}
	}
	return nil, assert.AnError
}

func (r *fakeRepo) ListByTenant(ctx context.Context, tenantID int64, filter ListFilter) ([]*TradingIntent, error) {
	return r.saved, nil
}

func newUseCase() (CreateTradingIntentUseCase, *fakeRepo) {
	repo := &fakeRepo{}
	return CreateTradingIntentUseCase{Symbols: fakeSymbols{}, Strategies: fakeStrategies{}, Intents: repo}, repo
}

func TestCreateTradingIntent_HappyManualBuy(t *testing.T) {
	uc, _ := newUseCase()
	got, err := uc.Execute(context.Background(), Command{
		TenantID:   1,
		SymbolID:   1,
		StrategyID: 1,
		Side:       exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000),
		StopPrice:  decimal.NewFromInt(49000),
		Capital:    decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(decimal.NewFromFloat(0.01)), "got %s", got.Quantity)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, got.RiskPercent.Equal(decimal.NewFromFloat(2.0)))
}

func TestCreateTradingIntent_AutoModeTrustsSuppliedQuantity(t *testing.T) {
	uc, _ := newUseCase()
	qty := decimal.NewFromFloat(0.025)
	got, err := uc.Execute(context.Background(), Command{
		TenantID:   1,
		SymbolID:   1,
		StrategyID: 1,
		Side:       exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000),
		StopPrice:  decimal.NewFromInt(49000),
		Capital:    decimal.NewFromInt(1000),
		Quantity:   &qty,
	})
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(qty))
	assert.True(t, got.RiskAmount.Equal(qty.Mul(decimal.NewFromInt(1000))))
}

func TestCreateTradingIntent_RejectsEqualEntryStop(t *testing.T) {
	uc, _ := newUseCase()
	_, err := uc.Execute(context.Background(), Command{
		TenantID: 1, SymbolID: 1, StrategyID: 1, Side: exchange.Buy,
		EntryPrice: decimal.NewFromInt(100), StopPrice: decimal.NewFromInt(100), Capital: decimal.NewFromInt(1000),
	})
	assert.Error(t, err)
}

func TestCreateTradingIntent_RejectsWrongSideStop(t *testing.T) {
	uc, _ := newUseCase()
	_, err := uc.Execute(context.Background(), Command{
		TenantID: 1, SymbolID: 1, StrategyID: 1, Side: exchange.Sell,
		EntryPrice: decimal.NewFromInt(100), StopPrice: decimal.NewFromInt(90), Capital: decimal.NewFromInt(1000),
	})
	assert.Error(t, err)
}

func TestStateMachine_TotalOrderEnforced(t *testing.T) {
	ti := &TradingIntent{Status: StatusPending}
	require.Error(t, ti.Execute(nil, 1), "cannot execute before validate")

	require.NoError(t, ti.Validate(map[string]any{"status": "PASS"}, 100))
	require.NoError(t, ti.Execute(map[string]any{"mode": "dry-run"}, 200))

	require.Error(t, ti.Cancel(), "cannot cancel a terminal (EXECUTED) intent")
}

func TestCancel_IdempotentOnAlreadyCancelled(t *testing.T) {
	ti := &TradingIntent{Status: StatusCancelled}
	assert.NoError(t, ti.Cancel())
	assert.Equal(t, StatusCancelled, ti.Status)
}

func TestFail_AllowedFromNonTerminal(t *testing.T) {
	ti := &TradingIntent{Status: StatusValidated}
	require.NoError(t, ti.Fail("exchange rejected order"))
	assert.Equal(t, StatusFailed, ti.Status)
	assert.Error(t, ti.Fail("again"), "cannot re-fail a terminal intent")
}
