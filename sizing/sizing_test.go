package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize_HappyPath(t *testing.T) {
	// Scenario 1 from spec §8: capital=1000, entry=50000, stop=49000.
	res := Size(decimal.NewFromInt(1000), decimal.NewFromInt(50000), decimal.NewFromInt(49000), decimal.Zero)
	require.False(t, res.Failed)
	assert.True(t, res.Quantity.Equal(decimal.NewFromFloat(0.01)), "got %s", res.Quantity)
	assert.False(t, res.IsCapped)
}

func TestSize_EqualEntryStopFails(t *testing.T) {
	res := Size(decimal.NewFromInt(1000), decimal.NewFromInt(50000), decimal.NewFromInt(50000), decimal.Zero)
	assert.True(t, res.Failed)
	assert.True(t, res.Quantity.IsZero())
}

func TestSize_HardCapAppliesRegardlessOfTightStop(t *testing.T) {
	// A 0.01% stop distance would otherwise produce a huge quantity.
	res := Size(decimal.NewFromInt(1000), decimal.NewFromInt(50000), decimal.NewFromFloat(49995), decimal.Zero)
	require.False(t, res.Failed)
	assert.True(t, res.IsCapped)
	maxValue := decimal.NewFromInt(500)
	assert.True(t, res.PositionValue.LessThanOrEqual(maxValue))
}

func TestSizeMargin_MultipliesThenCaps(t *testing.T) {
	res := SizeMargin(decimal.NewFromInt(1000), decimal.NewFromInt(50000), decimal.NewFromInt(49000), decimal.Zero, decimal.NewFromInt(5))
	require.False(t, res.Failed)
	assert.True(t, res.IsCapped, "5x leverage on this stop distance should breach the 50%% cap")
}
