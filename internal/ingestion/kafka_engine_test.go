package ingestion

import (
	"context"
	"math/big"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats/internal/domain"
	"perp-stats/internal/engine"
	"perp-stats/internal/evm"
	"perp-stats/internal/logging"
	"perp-stats/internal/memo"
	"perp-stats/internal/storage/memory"
)

type blockClock map[uint64]int64

func (c blockClock) ChainID(context.Context) (int64, error) { return 42161, nil }

func (c blockClock) BlockTimestamp(_ context.Context, n uint64) (int64, error) {
	return c[n], nil
}

type usdPrice float64

func (p usdPrice) Price(context.Context, *memo.Scope, string, int64, int64) (float64, bool, error) {
	return float64(p), true, nil
}

func amount(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(100_000_000))
}

func TestKafka_FollowerWithoutRPCAppliesPublishedEvents(t *testing.T) {
	const blockTime = int64(1_700_000_000)
	ctx := context.Background()

	leaderStores := memory.NewStores()
	leader := engine.New(blockClock{100: blockTime}, usdPrice(1), leaderStores, engine.Options{Logger: logging.Discard()})
	w := &fakeWriter{}
	pub := newKafkaPublisher(w, 42161, logging.Discard())

	ev := &domain.PositionUpdated{
		EventMeta: domain.EventMeta{BlockNumber: 100, TxHash: "0xabc"},
		Key:       "0xkey",
		User:      "0xuser",
		ProductID: "ETH-USD",
		Currency:  "0xusdc",
		IsLong:    true,
		Price:     amount(2000),
		Margin:    amount(100),
		Size:      amount(1000),
		Fee:       amount(1),
	}
	require.NoError(t, pub.Wrap(leader.Handle)(ctx, ev))
	require.Len(t, w.msgs, 1)

	rec, err := DecodeEvent(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, blockTime, rec.Event.Meta().Timestamp, "published record carries the block time")

	followerStores := memory.NewStores()
	follower := engine.New(evm.FixedChain{ID: 42161}, usdPrice(1), followerStores, engine.Options{Logger: logging.Discard()})
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 0, Value: w.msgs[0].Value}}}
	src := newKafkaSource(reader, "perp-events-42161", 42161, logging.Discard())

	runCtx, cancel := context.WithCancel(ctx)
	err = src.Run(runCtx, func(ctx context.Context, ev domain.TradingEvent) error {
		defer cancel()
		return follower.Handle(ctx, ev)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{0}, reader.committed)

	want, err := leaderStores.Positions.Get(ctx, domain.PositionID("0xkey", 42161))
	require.NoError(t, err)
	got, err := followerStores.Positions.Get(ctx, domain.PositionID("0xkey", 42161))
	require.NoError(t, err)
	assert.Equal(t, blockTime, got.CreatedAtTimestamp)
	assert.Equal(t, want.Margin, got.Margin)
	assert.Equal(t, want.Size, got.Size)
}
