package aggregate

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

const (
	usdc    = "0xaf88d065e77c8cc2239327c5edb3a432268e5831"
	chainID = int64(42161)
)

func TestGetOrCreate_IdempotentForUnseenKey(t *testing.T) {
	store := memory.NewAggregateStore()
	repo := NewRepository(store)
	ctx := context.Background()
	key := domain.AggregateKey{Kind: domain.KindProduct, Currency: usdc, ChainID: chainID, ProductID: "ETH-USD"}

	first, err := repo.GetOrCreate(ctx, memo.NewScope(), key)
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, memo.NewScope(), key)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "ETH-USD:"+usdc+":42161", first.ID)
	assert.Zero(t, first.OpenInterest)
	assert.Zero(t, first.PositionCount)

	// reads never write
	all, err := store.List(ctx, storage.AggregateFilter{Kind: domain.KindProduct})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGetOrCreate_SameInstanceWithinScope(t *testing.T) {
	repo := NewRepository(memory.NewAggregateStore())
	ctx := context.Background()
	scope := memo.NewScope()
	key := domain.AggregateKey{Kind: domain.KindGlobal, Currency: usdc, ChainID: chainID}

	a, err := repo.GetOrCreate(ctx, scope, key)
	require.NoError(t, err)
	a.TradeCount++

	b, err := repo.GetOrCreate(ctx, scope, key)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int64(1), b.TradeCount)
}

func TestGetOrCreate_DayCarryForward(t *testing.T) {
	store := memory.NewAggregateStore()
	repo := NewRepository(store)
	ctx := context.Background()

	day5 := domain.AggregateKey{Kind: domain.KindDayProduct, Currency: usdc, ChainID: chainID, ProductID: "ETH-USD", DayID: 5}
	prev := domain.NewAggregate(day5)
	prev.OpenInterest = 100
	prev.OpenInterestUsd = 100
	prev.OpenInterestLong = 60
	prev.OpenInterestShort = 40
	prev.PositionCount = 3
	prev.CumulativeVolume = 500
	prev.CumulativeFees = 7
	prev.TradeCount = 2
	require.NoError(t, store.Upsert(ctx, prev))

	day6 := day5
	day6.DayID = 6
	next, err := repo.GetOrCreate(ctx, memo.NewScope(), day6)
	require.NoError(t, err)

	assert.Equal(t, "ETH-USD:"+usdc+":6:42161", next.ID)
	assert.Equal(t, int64(6*domain.SecondsPerDay), next.Date)
	assert.Equal(t, 100.0, next.OpenInterest)
	assert.Equal(t, 100.0, next.OpenInterestUsd)
	assert.Equal(t, 60.0, next.OpenInterestLong)
	assert.Equal(t, 40.0, next.OpenInterestShort)
	assert.Equal(t, int64(3), next.PositionCount)
	assert.Zero(t, next.CumulativeVolume)
	assert.Zero(t, next.CumulativeFees)
	assert.Zero(t, next.TradeCount)
}

func TestGetOrCreate_NoPreviousDayZeroes(t *testing.T) {
	repo := NewRepository(memory.NewAggregateStore())
	key := domain.AggregateKey{Kind: domain.KindDay, Currency: usdc, ChainID: chainID, DayID: 19000}

	a, err := repo.GetOrCreate(context.Background(), memo.NewScope(), key)
	require.NoError(t, err)
	assert.Zero(t, a.OpenInterest)
	assert.Zero(t, a.PositionCount)
	assert.Equal(t, usdc+":19000:42161", a.ID)
}

func TestGetOrCreate_ExistingRecordNotCarried(t *testing.T) {
	store := memory.NewAggregateStore()
	repo := NewRepository(store)
	ctx := context.Background()

	day1 := domain.AggregateKey{Kind: domain.KindDay, Currency: usdc, ChainID: chainID, DayID: 1}
	day2 := day1
	day2.DayID = 2

	prev := domain.NewAggregate(day1)
	prev.OpenInterest = 50
	require.NoError(t, store.Upsert(ctx, prev))

	cur := domain.NewAggregate(day2)
	cur.OpenInterest = 80
	require.NoError(t, store.Upsert(ctx, cur))

	got, err := repo.GetOrCreate(ctx, memo.NewScope(), day2)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.OpenInterest)
}

func TestLoadAndSaveAll(t *testing.T) {
	store := memory.NewAggregateStore()
	repo := NewRepository(store)
	ctx := context.Background()
	ts := int64(1_700_000_000)

	levels, err := repo.Load(ctx, memo.NewScope(), usdc, chainID, "BTC-USD", ts)
	require.NoError(t, err)

	day := domain.DayID(ts)
	assert.Equal(t, domain.KindGlobal, levels.Global.Kind)
	assert.Equal(t, domain.KindDay, levels.Day.Kind)
	assert.Equal(t, day*domain.SecondsPerDay, levels.Day.Date)
	assert.Equal(t, "BTC-USD", levels.Product.ProductID)
	assert.Equal(t, domain.KindDayProduct, levels.DayProduct.Kind)

	for _, a := range levels.All() {
		a.PositionCount = 1
	}
	require.NoError(t, repo.SaveAll(ctx, levels))

	for _, a := range levels.All() {
		stored, err := store.Get(ctx, a.Kind, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.PositionCount)
	}
}
