package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/storage"
	"perp-stats/internal/storage/memory"
)

func row(h int64, price float64) *domain.HourPrice {
	return &domain.HourPrice{ID: domain.HourPriceID("0xusdc", 42161, h), Currency: "0xusdc", ChainID: 42161, HourTimestamp: h, PriceUsd: price}
}

// countingStore counts exact-hour reads.
type countingStore struct {
	*memory.HourPriceStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	c.gets++
	return c.HourPriceStore.Get(ctx, currency, chainID, hourTimestamp)
}

func TestHourPriceStore_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	inner := &countingStore{HourPriceStore: memory.NewHourPriceStore()}
	s := New(inner, client, 0, logging.Discard())
	assert.Equal(t, DefaultTTL, s.ttl)

	n, err := s.InsertBulk(ctx, []*domain.HourPrice{row(3600, 1), row(7200, 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := s.Get(ctx, "0xusdc", 42161, 3600)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.PriceUsd)

	_, err = s.Get(ctx, "0xusdc", 42161, 10800)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	after, err := s.NearestAfter(ctx, "0xusdc", 42161, 3600)
	require.NoError(t, err)
	assert.Equal(t, int64(7200), after.HourTimestamp)
}

func TestHourPriceStore_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	defer client.Close()

	inner := &countingStore{HourPriceStore: memory.NewHourPriceStore()}
	s := New(inner, client, time.Minute, logging.Discard())

	_, err = s.InsertBulk(ctx, []*domain.HourPrice{row(3600, 1)})
	require.NoError(t, err)

	data, err := client.Get(ctx, key(row(3600, 1).ID)).Bytes()
	require.NoError(t, err, "write-through populates the cache")
	var cached domain.HourPrice
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, 1.0, cached.PriceUsd)

	p, err := s.Get(ctx, "0xusdc", 42161, 3600)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.PriceUsd)
	assert.Zero(t, inner.gets, "served from redis")

	ttl, err := client.TTL(ctx, key(row(3600, 1).ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// A row present only in the wrapped store is cached on first read.
	_, err = inner.InsertBulk(ctx, []*domain.HourPrice{row(7200, 2)})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		p, err = s.Get(ctx, "0xusdc", 42161, 7200)
		require.NoError(t, err)
		assert.Equal(t, 2.0, p.PriceUsd)
	}
	assert.Equal(t, 1, inner.gets)
}
