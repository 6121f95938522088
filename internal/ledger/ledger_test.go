package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats/internal/domain"
	"perp-stats/internal/memo"
	"perp-stats/internal/storage"
	"perp-stats/internal/storage/memory"
)

func TestGetOrCreate_NewPosition(t *testing.T) {
	store := memory.NewPositionStore()
	l := New(store)

	p, isNew, err := l.GetOrCreate(context.Background(), memo.NewScope(), "0xkey", 42161, "ETH-USD")
	require.NoError(t, err)

	assert.True(t, isNew)
	assert.Equal(t, domain.PositionAbsent, p.State)
	assert.Equal(t, "0xkey:42161", p.ID)
	assert.Equal(t, "ETH-USD", p.ProductID)
	assert.Zero(t, p.Margin)
	assert.Zero(t, p.Size)
	assert.Zero(t, p.Fee)
	assert.Equal(t, 0, store.Len(), "lookup must not persist")
}

func TestSaveThenGet(t *testing.T) {
	l := New(memory.NewPositionStore())
	ctx := context.Background()

	p, _, err := l.GetOrCreate(ctx, memo.NewScope(), "0xkey", 1, "BTC-USD")
	require.NoError(t, err)
	p.Size = 10
	require.NoError(t, l.Save(ctx, p))
	assert.Equal(t, domain.PositionOpen, p.State)

	got, isNew, err := l.GetOrCreate(ctx, memo.NewScope(), "0xkey", 1, "BTC-USD")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 10.0, got.Size)
}

func TestDelete(t *testing.T) {
	store := memory.NewPositionStore()
	l := New(store)
	ctx := context.Background()
	scope := memo.NewScope()

	p, _, err := l.GetOrCreate(ctx, scope, "0xkey", 1, "BTC-USD")
	require.NoError(t, err)
	require.NoError(t, l.Save(ctx, p))

	require.NoError(t, l.Delete(ctx, scope, p))
	assert.Equal(t, domain.PositionClosed, p.State)
	assert.Equal(t, 0, store.Len())

	// a closed position cannot be written back
	err = l.Save(ctx, p)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// the scope no longer hands out the closed instance
	again, isNew, err := l.GetOrCreate(ctx, scope, "0xkey", 1, "BTC-USD")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotSame(t, p, again)
}
