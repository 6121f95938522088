package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
)

// sliceSource delivers fixed events, then either returns err or blocks
// until ctx is done.
type sliceSource struct {
	events []domain.TradingEvent
	err    error
	block  bool

	mu   sync.Mutex
	runs int
}

func (s *sliceSource) Run(ctx context.Context, handle domain.EventHandler) error {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	for _, ev := range s.events {
		if err := handle(ctx, ev); err != nil {
			return err
		}
	}
	if s.err != nil {
		return s.err
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *sliceSource) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func openEvent(block uint64) *domain.PositionUpdated {
	return &domain.PositionUpdated{EventMeta: domain.EventMeta{BlockNumber: block, TxHash: "0xtx"}}
}

type recorder struct {
	mu     sync.Mutex
	blocks []uint64
	failAt uint64
}

func (r *recorder) handle(_ context.Context, ev domain.TradingEvent) error {
	if r.failAt != 0 && ev.Meta().BlockNumber == r.failAt {
		return errors.New("boom")
	}
	r.mu.Lock()
	r.blocks = append(r.blocks, ev.Meta().BlockNumber)
	r.mu.Unlock()
	return nil
}

func TestRunner_ExhaustedSources(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	r := NewRunner(RunnerOptions{
		Chains: []Chain{
			{ID: 1, Source: &sliceSource{events: []domain.TradingEvent{openEvent(1), openEvent(2)}}, Handler: a.handle},
			{ID: 2, Source: &sliceSource{events: []domain.TradingEvent{openEvent(7)}}, Handler: b.handle},
		},
		Logger: logging.Discard(),
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []uint64{1, 2}, a.blocks)
	assert.Equal(t, []uint64{7}, b.blocks)
}

func TestRunner_HandlerErrorHaltsOnlyThatChain(t *testing.T) {
	failing := &recorder{failAt: 2}
	healthy := &recorder{}
	healthySrc := &sliceSource{events: []domain.TradingEvent{openEvent(5)}, block: true}

	r := NewRunner(RunnerOptions{
		Chains: []Chain{
			{ID: 1, Source: &sliceSource{events: []domain.TradingEvent{openEvent(1), openEvent(2), openEvent(3)}}, Handler: failing.handle},
			{ID: 2, Source: healthySrc, Handler: healthy.handle},
		},
		MaxRestarts: 3,
		Logger:      logging.Discard(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, r.Run(ctx), "one chain still ran until cancellation")
	assert.Equal(t, []uint64{1}, failing.blocks, "events after the failure are not handled")
	assert.Equal(t, []uint64{5}, healthy.blocks)
}

func TestRunner_AllChainsHalted(t *testing.T) {
	rec := &recorder{failAt: 1}
	r := NewRunner(RunnerOptions{
		Chains: []Chain{
			{ID: 1, Source: &sliceSource{events: []domain.TradingEvent{openEvent(1)}}, Handler: rec.handle},
		},
		Logger: logging.Discard(),
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllChainsHalted)
	assert.Contains(t, err.Error(), "chain 1")

	var herr *HandlerError
	assert.ErrorAs(t, err, &herr)
}

func TestRunner_SourceErrorRestarts(t *testing.T) {
	src := &sliceSource{err: errors.New("node down")}
	r := NewRunner(RunnerOptions{
		Chains:       []Chain{{ID: 1, Source: src, Handler: (&recorder{}).handle}},
		MaxRestarts:  2,
		RestartDelay: time.Millisecond,
		Logger:       logging.Discard(),
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, src.runCount())
}

func TestRunner_NoChains(t *testing.T) {
	assert.Error(t, NewRunner(RunnerOptions{}).Run(context.Background()))
}

func TestCompareMeta(t *testing.T) {
	a := domain.EventMeta{BlockNumber: 10, LogIndex: 2}
	assert.Equal(t, 0, CompareMeta(a, a))
	assert.Equal(t, -1, CompareMeta(a, domain.EventMeta{BlockNumber: 10, LogIndex: 3}))
	assert.Equal(t, 1, CompareMeta(a, domain.EventMeta{BlockNumber: 9, LogIndex: 7}))

	var c cursor
	assert.True(t, c.after(a))
	c.advance(a)
	assert.False(t, c.after(a))
	assert.True(t, c.after(domain.EventMeta{BlockNumber: 11}))
}
