package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/domain"
	"perp-stats/internal/pricing/gecko"
	"perp-stats/internal/storage"
)

// TokenResolver resolves and permanently caches provider metadata per
// (currency, chain).
type TokenResolver struct {
	store    storage.TokenInfoStore
	provider Provider
	networks map[int64]string
	wrapped  map[int64]NativeToken
	now      func() time.Time
	log      *logrus.Entry

	mu    sync.Mutex
	known map[string]*domain.TokenInfo
}

// NewTokenResolver creates a resolver.
func NewTokenResolver(store storage.TokenInfoStore, provider Provider, networks map[int64]string, wrapped map[int64]NativeToken, now func() time.Time, log *logrus.Entry) *TokenResolver {
	return &TokenResolver{
		store:    store,
		provider: provider,
		networks: networks,
		wrapped:  wrapped,
		now:      now,
		log:      log,
		known:    make(map[string]*domain.TokenInfo),
	}
}

// Resolve returns the token info for currency on chainID, fetching and
// storing it on first use. A nil result without error means the provider
// lists no usable pool.
func (r *TokenResolver) Resolve(ctx context.Context, currency string, chainID int64) (*domain.TokenInfo, error) {
	id := domain.TokenInfoID(currency, chainID)

	r.mu.Lock()
	info, ok := r.known[id]
	r.mu.Unlock()
	if ok {
		return info, nil
	}

	info, err := r.store.Get(ctx, currency, chainID)
	if err == nil {
		r.remember(info)
		return info, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get token info %s: %w", id, err)
	}

	info, err = r.fetch(ctx, currency, chainID)
	if err != nil || info == nil {
		return nil, err
	}

	if err := r.store.Insert(ctx, info); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("insert token info %s: %w", id, err)
		}
		if stored, getErr := r.store.Get(ctx, currency, chainID); getErr == nil {
			info = stored
		}
	}

	r.remember(info)
	r.log.WithFields(logrus.Fields{
		"currency":      currency,
		"chain_id":      chainID,
		"pool":          info.PoolAddress,
		"pool_is_base":  info.PoolIsInBase,
		"mapped":        info.MappedCurrency,
		"pool_chain_id": info.PoolChainID,
	}).Info("token info resolved")
	return info, nil
}

func (r *TokenResolver) remember(info *domain.TokenInfo) {
	r.mu.Lock()
	r.known[info.ID] = info
	r.mu.Unlock()
}

func (r *TokenResolver) fetch(ctx context.Context, currency string, chainID int64) (*domain.TokenInfo, error) {
	mapped, poolChainID := currency, chainID
	if IsNative(currency) {
		native, ok := r.wrapped[chainID]
		if !ok {
			return nil, fmt.Errorf("%w: no wrapped native token for chain %d", ErrPriceProvider, chainID)
		}
		mapped, poolChainID = native.Address, native.ChainID
	}

	network, ok := r.networks[poolChainID]
	if !ok {
		return nil, fmt.Errorf("%w: no provider network for chain %d", ErrPriceProvider, poolChainID)
	}

	token, err := r.provider.Token(ctx, network, mapped)
	if err != nil {
		return nil, fmt.Errorf("%w: token %s on %s: %w", ErrPriceProvider, mapped, network, err)
	}

	pool, ok := pickPool(token.Pools)
	if !ok {
		r.log.WithFields(logrus.Fields{"currency": currency, "chain_id": chainID}).
			Warn("no two-leg pool listed for token")
		return nil, nil
	}

	return &domain.TokenInfo{
		ID:                 domain.TokenInfoID(currency, chainID),
		Currency:           currency,
		ChainID:            chainID,
		MappedCurrency:     mapped,
		PoolChainID:        poolChainID,
		NetworkID:          network,
		Decimals:           token.Decimals,
		Name:               token.Name,
		Symbol:             token.Symbol,
		PoolAddress:        pool.Address,
		PoolIsInBase:       tokenAddress(pool.BaseTokenID) == strings.ToLower(mapped),
		CreatedAtTimestamp: r.now().Unix(),
	}, nil
}

// pickPool returns the first pool whose name has exactly two legs.
func pickPool(pools []gecko.Pool) (gecko.Pool, bool) {
	for _, p := range pools {
		if len(strings.Split(p.Name, " / ")) < 3 {
			return p, true
		}
	}
	return gecko.Pool{}, false
}

// tokenAddress extracts the lowercased address from a "<network>_<address>" id.
func tokenAddress(id string) string {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}
