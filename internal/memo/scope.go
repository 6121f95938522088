// Package memo provides the per-event retrieval cache shared by every
// sub-operation of one event handler.
//
// A Scope is created when an event arrives and discarded once its writes
// complete. Within a scope, repeated lookups of the same key return the same
// in-memory value, so handlers that touch a record through several paths
// mutate one consistent copy. A scope gives no isolation across events.
package memo

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLoadPanicked is returned to callers waiting on a load that panicked.
var ErrLoadPanicked = errors.New("load panicked")

// Scope is a concurrency-safe key/value cache with single-flight loading.
type Scope struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	done chan struct{}
	val  any
	err  error
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{entries: make(map[string]*entry)}
}

// Len returns the number of resolved or in-flight keys.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Delete drops key so the next Retrieve loads it again.
func (s *Scope) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Set stores v under key, replacing any previous value.
func Set[T any](s *Scope, key string, v T) {
	done := make(chan struct{})
	close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{done: done, val: v}
}

// Retrieve returns the value stored under key, calling load at most once
// per key while it succeeds. Concurrent callers for the same key wait for
// the first load. Failed loads are not cached.
func Retrieve[T any](ctx context.Context, s *Scope, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{done: make(chan struct{})}
		s.entries[key] = e
	}
	s.mu.Unlock()

	if ok {
		select {
		case <-e.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		if e.err != nil {
			return zero, e.err
		}
		v, isT := e.val.(T)
		if !isT {
			return zero, fmt.Errorf("memo key %q holds %T", key, e.val)
		}
		return v, nil
	}

	returned := false
	defer func() {
		// load panicked; release waiters before the panic continues
		if !returned {
			e.err = fmt.Errorf("memo key %q: %w", key, ErrLoadPanicked)
			s.forget(key, e)
			close(e.done)
		}
	}()

	v, err := load(ctx)
	returned = true
	if err != nil {
		e.err = err
		s.forget(key, e)
		close(e.done)
		return zero, err
	}

	e.val = v
	close(e.done)
	return v, nil
}

// forget removes e unless key was replaced meanwhile.
func (s *Scope) forget(key string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[key] == e {
		delete(s.entries, key)
	}
}
