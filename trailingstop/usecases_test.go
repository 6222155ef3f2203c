package trailingstop

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/exchange"
)

type fakeStates struct {
	state  TrailingStopState
	tokens map[string]bool
	saved  []StopAdjustment
}

func newFakeStates(s TrailingStopState) *fakeStates {
	return &fakeStates{state: s, tokens: map[string]bool{}}
}

func (f *fakeStates) GetState(ctx context.Context, positionID string) (TrailingStopState, error) {
	return f.state, nil
}

func (f *fakeStates) SaveAdjustment(ctx context.Context, adj StopAdjustment, newState TrailingStopState) error {
	f.tokens[adj.AdjustmentToken] = true
	f.saved = append(f.saved, adj)
	f.state = newState
	return nil
}

func (f *fakeStates) HasAdjustmentToken(ctx context.Context, token string) (bool, error) {
	return f.tokens[token], nil
}

func (f *fakeStates) WithPositionLock(ctx context.Context, positionID string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeEvents struct {
	published []StopAdjustment
}

func (f *fakeEvents) PublishAdjustment(ctx context.Context, adj StopAdjustment) {
	f.published = append(f.published, adj)
}

func TestExecute_AppliesAndPersistsBreakEven(t *testing.T) {
	states := newFakeStates(TrailingStopState{
		PositionID: "pos-1", Side: exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(49000),
		CurrentPrice: decimal.NewFromInt(51000), Fees: DefaultFeeConfig(),
	})
	events := &fakeEvents{}
	uc := AdjustTrailingStopUseCase{States: states, Events: events}

	outcome, err := uc.Execute(context.Background(), "pos-1", "BTCUSDC", "")
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, ReasonBreakEven, outcome.Adjustment.Reason)
	assert.Len(t, events.published, 1)
	assert.True(t, states.state.CurrentStop.Equal(outcome.Adjustment.NewStop))
}

func TestExecute_DuplicateTokenIsNoOp(t *testing.T) {
	states := newFakeStates(TrailingStopState{
		PositionID: "pos-1", Side: exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(49000),
		CurrentPrice: decimal.NewFromInt(51000), Fees: DefaultFeeConfig(),
	})
	states.tokens["pos-1:adjust:fixed"] = true
	uc := AdjustTrailingStopUseCase{States: states}

	outcome, err := uc.Execute(context.Background(), "pos-1", "BTCUSDC", "pos-1:adjust:fixed")
	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.Equal(t, "duplicate adjustment (idempotency)", outcome.SkipReason)
	assert.Empty(t, states.saved)
}

func TestExecute_ZeroSpansIsNoOpWithoutTouchingStore(t *testing.T) {
	states := newFakeStates(TrailingStopState{
		PositionID: "pos-1", Side: exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(49000),
		CurrentPrice: decimal.NewFromInt(49200), Fees: DefaultFeeConfig(),
	})
	uc := AdjustTrailingStopUseCase{States: states}

	outcome, err := uc.Execute(context.Background(), "pos-1", "BTCUSDC", "")
	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.Empty(t, states.saved)
}

func TestExecute_InvalidStateSurfacesError(t *testing.T) {
	states := newFakeStates(TrailingStopState{
		PositionID: "pos-1", Side: exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(48000),
		CurrentPrice: decimal.NewFromInt(51000),
	})
	uc := AdjustTrailingStopUseCase{States: states}

	_, err := uc.Execute(context.Background(), "pos-1", "BTCUSDC", "")
	assert.Error(t, err)
}

type fakeFilter struct {
	positions []EligiblePosition
}

func (f fakeFilter) EligiblePositions(ctx context.Context) ([]EligiblePosition, error) {
	return f.positions, nil
}

func TestExecuteAll_ReportsFailureAsPerPositionResult(t *testing.T) {
	goodStates := newFakeStates(TrailingStopState{
		PositionID: "good", Side: exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(49000),
		CurrentPrice: decimal.NewFromInt(51000), Fees: DefaultFeeConfig(),
	})

	// GetState ignores positionID, so each position gets its own fake and its
	// own sweep; the point under test is that ExecuteAll reports a failing
	// position as an error on its own BatchResult.
	badStates := newFakeStates(TrailingStopState{
		PositionID: "bad", Side: exchange.Buy,
		EntryPrice: decimal.NewFromInt(50000), InitialStop: decimal.NewFromInt(49000), CurrentStop: decimal.NewFromInt(48000),
		CurrentPrice: decimal.NewFromInt(51000),
	})

	all := AdjustAllTrailingStopsUseCase{
		Filter: fakeFilter{positions: []EligiblePosition{{PositionID: "good", Symbol: "BTCUSDC"}}},
		Single: AdjustTrailingStopUseCase{States: goodStates},
	}
	results := all.ExecuteAll(context.Background())
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	allBad := AdjustAllTrailingStopsUseCase{
		Filter: fakeFilter{positions: []EligiblePosition{{PositionID: "bad", Symbol: "BTCUSDC"}}},
		Single: AdjustTrailingStopUseCase{States: badStates},
	}
	resultsBad := allBad.ExecuteAll(context.Background())
	require.Len(t, resultsBad, 1)
	assert.Error(t, resultsBad[0].Err)
}
