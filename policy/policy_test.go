package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordTrade_DrawdownAutoPause(t *testing.T) {
	s := NewState(1, 2026, 7, decimal.NewFromInt(10000))
	now := time.Now()

	s.RecordTrade(decimal.NewFromInt(-250), false, now)
	assert.Equal(t, StatusActive, s.Status)

	s.RecordTrade(decimal.NewFromInt(-100), false, now)
	assert.Equal(t, StatusActive, s.Status)

	s.RecordTrade(decimal.NewFromInt(-150), false, now)
	assert.Equal(t, StatusPaused, s.Status)
	assert.Contains(t, s.PauseReason, "5.00%")
	assert.NotNil(t, s.PausedAt)
	assert.Equal(t, 3, s.TradeCount)
	assert.Equal(t, 0, s.WinCount)
	assert.Equal(t, 3, s.LossCount)
}

func TestRecordTrade_WinningTradesStayActive(t *testing.T) {
	s := NewState(1, 2026, 7, decimal.NewFromInt(10000))
	s.RecordTrade(decimal.NewFromInt(200), true, time.Now())
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 1, s.WinCount)
	assert.True(t, s.CurrentCapital.Equal(decimal.NewFromInt(10200)))
}

func TestUpdateUnrealizedPnL_PausesWithoutTouchingRealizedCapital(t *testing.T) {
	s := NewState(1, 2026, 7, decimal.NewFromInt(10000))
	realized := s.CurrentCapital

	s.UpdateUnrealizedPnL(decimal.NewFromInt(-500), time.Now())

	assert.Equal(t, StatusPaused, s.Status)
	assert.False(t, s.CurrentCapital.Equal(realized), "paused state should freeze the breaching capital snapshot")
}

func TestUpdateUnrealizedPnL_RecoversWithoutPause(t *testing.T) {
	s := NewState(1, 2026, 7, decimal.NewFromInt(10000))
	s.UpdateUnrealizedPnL(decimal.NewFromInt(-100), time.Now())
	assert.Equal(t, StatusActive, s.Status)
	assert.True(t, s.CurrentCapital.Equal(decimal.NewFromInt(10000)))
}

func TestManualTransitions(t *testing.T) {
	s := NewState(1, 2026, 7, decimal.NewFromInt(10000))

	require := assert.New(t)
	require.NoError(s.Suspend("admin review", time.Now()))
	require.Equal(StatusSuspended, s.Status)
	require.Error(s.Pause("x", time.Now()))

	require.NoError(s.Unsuspend())
	require.Equal(StatusActive, s.Status)

	require.NoError(s.Pause("manual", time.Now()))
	require.Equal(StatusPaused, s.Status)
	require.Error(s.Suspend("x", time.Now()))

	require.NoError(s.Resume())
	require.Equal(StatusActive, s.Status)
}

func TestRollMonth_SeedsFromEndingCapital(t *testing.T) {
	s := NewState(1, 2026, 7, decimal.NewFromInt(10000))
	s.RecordTrade(decimal.NewFromInt(300), true, time.Now())

	next := s.RollMonth(2026, 8)
	assert.True(t, next.StartingCapital.Equal(decimal.NewFromInt(10300)))
	assert.Equal(t, StatusActive, next.Status)
	assert.Equal(t, 0, next.TradeCount)
}
