package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

const DefaultAdmissionTimeout = time.Second

// ErrCancelled is returned by Dequeue when its context ends.
var ErrCancelled = errors.New("queue: cancelled")

// Queue is a bounded FIFO of pending requests plus the history of everything
// ever submitted. A submission that cannot be admitted within the admission
// timeout is rejected but still kept in the history.
type Queue struct {
	pending chan *RequestContext
	timeout time.Duration

	mu      sync.RWMutex
	history []*RequestContext
	byID    map[string]*RequestContext
}

// New creates a queue holding at most capacity pending requests.
func New(capacity int, admissionTimeout time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 2 * runtime.NumCPU()
	}
	if admissionTimeout <= 0 {
		admissionTimeout = DefaultAdmissionTimeout
	}
	return &Queue{
		pending: make(chan *RequestContext, capacity),
		timeout: admissionTimeout,
		byID:    make(map[string]*RequestContext),
	}
}

// Submit records req and offers it to the pending queue. The returned bool
// is false when the queue stayed full for the whole admission timeout or ctx
// ended first; such a request is never dequeued.
func (q *Queue) Submit(ctx context.Context, req SyncRequest) (*RequestContext, bool) {
	rc := newRequestContext(req)

	q.mu.Lock()
	q.history = append(q.history, rc)
	q.byID[rc.ID] = rc
	q.mu.Unlock()

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case q.pending <- rc:
		rc.admitted.Store(true)
		return rc, true
	case <-timer.C:
	case <-ctx.Done():
	}

	return rc, false
}

// Dequeue blocks until a pending request is available or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (*RequestContext, error) {
	select {
	case rc := <-q.pending:
		return rc, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// ListAll returns every submitted request in submission order.
func (q *Queue) ListAll() []*RequestContext {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*RequestContext, len(q.history))
	copy(out, q.history)
	return out
}

func (q *Queue) Get(id string) (*RequestContext, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	rc, ok := q.byID[id]
	return rc, ok
}

// Len is the number of admitted requests not yet dequeued.
func (q *Queue) Len() int {
	return len(q.pending)
}

func (q *Queue) Cap() int {
	return cap(q.pending)
}
