package memory

import (
	"context"
	"errors"
	"testing"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

func TestAggregateStore_UpsertAndGet(t *testing.T) {
	store := NewAggregateStore()
	ctx := context.Background()

	key := domain.AggregateKey{Kind: domain.KindProduct, Currency: "0xusdc", ChainID: 42161, ProductID: "ETH-USD"}
	agg := domain.NewAggregate(key)
	agg.OpenInterest = 100

	if err := store.Upsert(ctx, agg); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	agg.OpenInterest = 999

	got, err := store.Get(ctx, domain.KindProduct, "ETH-USD:0xusdc:42161")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OpenInterest != 100 {
		t.Errorf("OpenInterest mismatch: got %v, want 100", got.OpenInterest)
	}

	// Same id under another kind is a different record.
	_, err = store.Get(ctx, domain.KindDayProduct, "ETH-USD:0xusdc:42161")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAggregateStore_InvalidKind(t *testing.T) {
	store := NewAggregateStore()

	_, err := store.Get(context.Background(), domain.AggregateKind("Nope"), "x")
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAggregateStore_ListFiltersAndOrders(t *testing.T) {
	store := NewAggregateStore()
	ctx := context.Background()

	for _, k := range []domain.AggregateKey{
		{Kind: domain.KindDayProduct, Currency: "c", ChainID: 1, ProductID: "BTC-USD", DayID: 12},
		{Kind: domain.KindDayProduct, Currency: "c", ChainID: 1, ProductID: "ETH-USD", DayID: 10},
		{Kind: domain.KindDayProduct, Currency: "c", ChainID: 1, ProductID: "ETH-USD", DayID: 11},
		{Kind: domain.KindDayProduct, Currency: "c", ChainID: 2, ProductID: "ETH-USD", DayID: 11},
	} {
		if err := store.Upsert(ctx, domain.NewAggregate(k)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	all, err := store.List(ctx, storage.AggregateFilter{Kind: domain.KindDayProduct})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 records, got %d", len(all))
	}
	if all[0].Date != 10*domain.SecondsPerDay {
		t.Errorf("expected earliest day first, got date %d", all[0].Date)
	}

	ranged, err := store.List(ctx, storage.AggregateFilter{
		Kind:    domain.KindDayProduct,
		ChainID: 1,
		From:    11 * domain.SecondsPerDay,
		To:      12 * domain.SecondsPerDay,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("expected 2 records, got %d", len(ranged))
	}
	if ranged[0].ID != "ETH-USD:c:11:1" || ranged[1].ID != "BTC-USD:c:12:1" {
		t.Errorf("unexpected order: %s, %s", ranged[0].ID, ranged[1].ID)
	}
}
