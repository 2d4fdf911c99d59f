package engine

import (
	"context"
	"sync"
)

// sourceLocks hands out one exclusive, cancellable lock per known source.
type sourceLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{locks: make(map[string]chan struct{})}
}

func (l *sourceLocks) get(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	return ch
}

// lock blocks until name is free or ctx is done.
func (l *sourceLocks) lock(ctx context.Context, name string) (func(), error) {
	ch := l.get(name)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
