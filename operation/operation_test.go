package operation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/exchange"
)

type fakeRepo struct {
	byID map[int64]*Operation
}

func newFakeRepo(ops ...*Operation) *fakeRepo {
	r := &fakeRepo{byID: map[int64]*Operation{}}
	for _, o := range ops {
		r.byID[o.ID] = o
	}
	return r
}

func (r *fakeRepo) GetByIDForTenant(ctx context.Context, id, tenantID int64) (*Operation, error) {
	op, ok := r.byID[id]
	if !ok || op.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return op, nil
}

func (r *fakeRepo) Save(ctx context.Context, op *Operation) error {
	r.byID[op.ID] = op
	return nil
}

func (r *fakeRepo) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*Operation, error) {
	var out []*Operation
	for _, o := range r.byID {
		if o.TenantID == tenantID && o.Status == StatusActive {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestCancel_IdempotentOnAlreadyCancelled(t *testing.T) {
	repo := newFakeRepo(&Operation{ID: 1, TenantID: 1, Status: StatusCancelled})
	op, err := Cancel(context.Background(), repo, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, op.Status)
}

func TestCancel_ConflictOnClosed(t *testing.T) {
	repo := newFakeRepo(&Operation{ID: 1, TenantID: 1, Status: StatusClosed})
	_, err := Cancel(context.Background(), repo, 1, 1)
	require.Error(t, err)
	var conflict *ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusClosed, conflict.CurrentStatus)
}

func TestCancel_WrongTenantReturnsNotFound(t *testing.T) {
	repo := newFakeRepo(&Operation{ID: 1, TenantID: 99, Status: StatusActive})
	_, err := Cancel(context.Background(), repo, 1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_ActiveFlipsToCancelled(t *testing.T) {
	repo := newFakeRepo(&Operation{ID: 1, TenantID: 1, Status: StatusActive})
	op, err := Cancel(context.Background(), repo, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, op.Status)
}

func TestProject_LongPosition(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Bids["BTCUSDC"] = decimal.NewFromInt(51000)

	op := &Operation{
		Symbol: "BTCUSDC", Side: exchange.Buy, EntryPrice: decimal.NewFromInt(50000),
		Quantity: decimal.NewFromFloat(0.01), StopPrice: decimal.NewFromInt(49000),
		OpenedAt: time.Now(),
	}

	card, err := Project(context.Background(), mem, op)
	require.NoError(t, err)
	assert.True(t, card.UnrealizedPnL.Equal(decimal.NewFromInt(10)))
	assert.True(t, card.DistanceToStop.Equal(decimal.NewFromInt(2000)))
	assert.Nil(t, card.MarginLevel)
}

func TestProject_MarginPositionIncludesMarginLevel(t *testing.T) {
	mem := exchange.NewMemory()
	mem.Asks["BTCUSDC"] = decimal.NewFromInt(49000)

	op := &Operation{
		Symbol: "BTCUSDC", Side: exchange.Sell, EntryPrice: decimal.NewFromInt(50000),
		Quantity: decimal.NewFromFloat(0.01), StopPrice: decimal.NewFromInt(51000),
		IsMargin: true,
	}

	card, err := Project(context.Background(), mem, op)
	require.NoError(t, err)
	require.NotNil(t, card.MarginLevel)
}
