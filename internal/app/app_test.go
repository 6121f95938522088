package app

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats/internal/config"
	"perp-stats/internal/domain"
	"perp-stats/internal/ingestion"
	"perp-stats/internal/logging"
	"perp-stats/internal/memo"
	"perp-stats/internal/storage"
)

type flatPrice struct{ usd float64 }

func (f flatPrice) Price(context.Context, *memo.Scope, string, int64, int64) (float64, bool, error) {
	return f.usd, true, nil
}

func units(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(100_000_000))
}

func writeReplayFile(t *testing.T, chainID int64, events ...domain.TradingEvent) string {
	t.Helper()
	var lines []string
	for _, ev := range events {
		data, err := ingestion.EncodeEvent(chainID, ev)
		require.NoError(t, err)
		lines = append(lines, string(data))
	}
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestOpenStores_Memory(t *testing.T) {
	stores, cleanup, err := OpenStores(context.Background(), config.StorageConfig{Backend: config.BackendMemory}, logging.Discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, stores.Positions)
	assert.NotNil(t, stores.HourPrices)
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	_, _, err := OpenStores(context.Background(), config.StorageConfig{Backend: "sqlite"}, logging.Discard())
	assert.ErrorContains(t, err, "sqlite")
}

func TestBuildChains(t *testing.T) {
	cfg := config.Default()
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Chains = append(cfg.Chains, config.ChainConfig{ChainID: 10, Name: "optimism", Source: config.SourceKafka, KafkaTopic: "perp-events-10"})

	stores, cleanup, err := OpenStores(context.Background(), cfg.Storage, logging.Discard())
	require.NoError(t, err)
	defer cleanup()

	logger, err := logging.New(config.Default().Log)
	require.NoError(t, err)

	chains, closeChains, err := BuildChains(context.Background(), &cfg, stores, flatPrice{1}, logger)
	require.NoError(t, err)
	defer closeChains()

	require.Len(t, chains, 2)
	assert.Equal(t, int64(42161), chains[0].ID)
	assert.Equal(t, int64(10), chains[1].ID)
	_, isKafka := chains[1].Source.(*ingestion.KafkaSource)
	assert.True(t, isKafka)

	cfg.Chains = []config.ChainConfig{{ChainID: 1, Source: "carrier-pigeon"}}
	_, _, err = BuildChains(context.Background(), &cfg, stores, flatPrice{1}, logger)
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestReplay_OpenThenFullClose(t *testing.T) {
	ctx := context.Background()
	const chainID = int64(42161)
	ts := int64(1_700_000_000)

	path := writeReplayFile(t, chainID,
		&domain.PositionUpdated{
			EventMeta: domain.EventMeta{BlockNumber: 100, TxHash: "0xopen", Timestamp: ts},
			Key:       "0xkey", User: "0xuser", ProductID: "ETH-USD", Currency: "0xusdc", IsLong: true,
			Price: units(50_000), Margin: units(100), Size: units(1000), Fee: units(1),
		},
		&domain.ClosePosition{
			EventMeta: domain.EventMeta{BlockNumber: 101, TxHash: "0xclose", Timestamp: ts + 60},
			Key:       "0xkey", User: "0xuser", ProductID: "ETH-USD", Currency: "0xusdc",
			Price: units(51_000), Margin: units(99), Size: units(1000), Fee: units(1), Pnl: units(20),
		},
	)

	stores, cleanup, err := OpenStores(ctx, config.StorageConfig{}, logging.Discard())
	require.NoError(t, err)
	defer cleanup()

	chain := Replay(path, chainID, stores, flatPrice{1}, logging.Discard())
	runner := ingestion.NewRunner(ingestion.RunnerOptions{Chains: []ingestion.Chain{chain}, Logger: logging.Discard()})
	require.NoError(t, runner.Run(ctx))

	_, err = stores.Positions.Get(ctx, domain.PositionID("0xkey", chainID))
	assert.ErrorIs(t, err, storage.ErrNotFound, "full close removes the position")

	products, err := stores.Aggregates.List(ctx, storage.AggregateFilter{Kind: domain.KindProduct})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(0), products[0].PositionCount)
	assert.Equal(t, int64(1), products[0].TradeCount)
	assert.InDelta(t, 0, products[0].OpenInterest, 1e-9)

	trades, err := stores.Trades.GetByPositionKey(ctx, chainID, "0xkey")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].IsFullClose)
	assert.Equal(t, int64(60), trades[0].Duration)
	assert.Equal(t, 20.0, trades[0].Pnl)

	n, err := stores.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
