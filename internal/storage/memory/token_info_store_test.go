package memory

import (
	"context"
	"errors"
	"testing"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

func TestTokenInfoStore_InsertOnce(t *testing.T) {
	store := NewTokenInfoStore()
	ctx := context.Background()

	info := &domain.TokenInfo{
		ID:          domain.TokenInfoID("0xusdc", 42161),
		Currency:    "0xusdc",
		ChainID:     42161,
		PoolAddress: "0xpool",
	}
	if err := store.Insert(ctx, info); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	dup := *info
	dup.PoolAddress = "0xother"
	if err := store.Insert(ctx, &dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.Get(ctx, "0xusdc", 42161)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PoolAddress != "0xpool" {
		t.Errorf("first insert must win: got %s", got.PoolAddress)
	}

	if _, err := store.Get(ctx, "0xusdc", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on another chain, got %v", err)
	}
	if err := store.Insert(ctx, &domain.TokenInfo{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTokenInfoStore_ListOrdered(t *testing.T) {
	store := NewTokenInfoStore()
	ctx := context.Background()

	for _, c := range []string{"0xb", "0xa", "0xc"} {
		if err := store.Insert(ctx, &domain.TokenInfo{ID: domain.TokenInfoID(c, 1), Currency: c, ChainID: 1}); err != nil {
			t.Fatalf("Insert %s failed: %v", c, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 infos, got %d", len(list))
	}
	for i, want := range []string{"0xa", "0xb", "0xc"} {
		if list[i].Currency != want {
			t.Errorf("list[%d]: got %s, want %s", i, list[i].Currency, want)
		}
	}
}
