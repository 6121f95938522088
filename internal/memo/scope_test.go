package memo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct{ n int }

func TestRetrieve_LoadsOnce(t *testing.T) {
	s := NewScope()
	ctx := context.Background()
	var calls int

	load := func(context.Context) (*record, error) {
		calls++
		return &record{n: 1}, nil
	}

	a, err := Retrieve(ctx, s, "k", load)
	require.NoError(t, err)
	b, err := Retrieve(ctx, s, "k", load)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Same(t, a, b, "same key must yield the same instance")
}

func TestRetrieve_ConcurrentSingleFlight(t *testing.T) {
	s := NewScope()
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})

	load := func(context.Context) (*record, error) {
		calls.Add(1)
		<-release
		return &record{n: 7}, nil
	}

	var wg sync.WaitGroup
	results := make([]*record, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := Retrieve(ctx, s, "k", load)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestRetrieve_ErrorNotCached(t *testing.T) {
	s := NewScope()
	ctx := context.Background()
	boom := errors.New("boom")
	var calls int

	load := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 42, nil
	}

	_, err := Retrieve(ctx, s, "k", load)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())

	v, err := Retrieve(ctx, s, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSetAndDelete(t *testing.T) {
	s := NewScope()
	ctx := context.Background()

	Set(s, "k", &record{n: 3})
	r, err := Retrieve(ctx, s, "k", func(context.Context) (*record, error) {
		t.Fatal("load must not run for a set key")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, r.n)

	s.Delete("k")
	r, err = Retrieve(ctx, s, "k", func(context.Context) (*record, error) {
		return &record{n: 4}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, r.n)
}

func TestRetrieve_TypeMismatch(t *testing.T) {
	s := NewScope()
	Set(s, "k", "text")

	_, err := Retrieve(context.Background(), s, "k", func(context.Context) (int, error) {
		return 1, nil
	})
	assert.Error(t, err)
}

func TestRetrieve_PanicReleasesWaiters(t *testing.T) {
	s := NewScope()
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		<-started
		// give the waiter time to block on the in-flight load
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	waiterErr := make(chan error, 1)
	go func() {
		<-started
		_, err := Retrieve(ctx, s, "k", func(context.Context) (int, error) {
			return 2, nil
		})
		waiterErr <- err
	}()

	assert.Panics(t, func() {
		_, _ = Retrieve(ctx, s, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			panic("boom")
		})
	})

	select {
	case err := <-waiterErr:
		assert.ErrorIs(t, err, ErrLoadPanicked)
	case <-time.After(time.Second):
		t.Fatal("waiter still blocked after the load panicked")
	}
	assert.Equal(t, 0, s.Len())

	v, err := Retrieve(ctx, s, "k", func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
