package postgres

import (
	"context"
	"fmt"
	"time"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// ProgressStore implements storage.ProgressStore using PostgreSQL.
type ProgressStore struct {
	pool *Pool
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(pool *Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProgressStore = (*ProgressStore)(nil)

// Get returns the progress for a contract. Returns ErrNotFound if none was saved.
func (s *ProgressStore) Get(ctx context.Context, chainID int64, contract string) (p *domain.SyncProgress, err error) {
	defer func(start time.Time) { observe("progress_get", start, err) }(time.Now())

	var lastBlock, partialBlock, partialLogIndex int64
	p = &domain.SyncProgress{ChainID: chainID, Contract: contract}
	err = s.pool.QueryRow(ctx, `
		SELECT last_block, partial_block, partial_log_index, updated_at
		FROM sync_progress
		WHERE chain_id = $1 AND contract = $2
	`, chainID, contract).Scan(&lastBlock, &partialBlock, &partialLogIndex, &p.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync progress: %w", err)
	}
	p.LastBlock = uint64(lastBlock)
	p.PartialBlock = uint64(partialBlock)
	p.PartialLogIndex = uint(partialLogIndex)
	return p, nil
}

// Upsert saves progress, replacing the previous value.
func (s *ProgressStore) Upsert(ctx context.Context, p *domain.SyncProgress) (err error) {
	if p == nil || p.Contract == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("progress_upsert", start, err) }(time.Now())

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sync_progress (chain_id, contract, last_block, partial_block, partial_log_index, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chain_id, contract) DO UPDATE
		SET last_block = EXCLUDED.last_block,
		    partial_block = EXCLUDED.partial_block,
		    partial_log_index = EXCLUDED.partial_log_index,
		    updated_at = EXCLUDED.updated_at
	`, p.ChainID, p.Contract, int64(p.LastBlock), int64(p.PartialBlock), int64(p.PartialLogIndex), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert sync progress: %w", err)
	}
	return nil
}
