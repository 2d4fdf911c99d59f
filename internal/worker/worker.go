package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/engine"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/queue"
	"golang.org/x/sync/semaphore"
)

// Syncer runs one pass over a known source.
type Syncer interface {
	Sync(ctx context.Context, name string) (*engine.Result, error)
}

type Options struct {
	// Concurrency bounds the requests processed at once. Defaults to NumCPU.
	Concurrency  int
	StartupDelay time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Stats tracks totals across every processed request.
type Stats struct {
	Requests int64
	Sources  int64
	Uploaded int64
	Errors   int64
	Bytes    int64
}

// Orchestrator pulls requests off the queue and runs each one in its own
// goroutine, bounded by a weighted semaphore. Sources within a request run
// one after another.
type Orchestrator struct {
	queue        *queue.Queue
	syncer       Syncer
	sem          *semaphore.Weighted
	concurrency  int
	startupDelay time.Duration
	clock        clockwork.Clock
	log          *slog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]*queue.RequestContext

	requests atomic.Int64
	sources  atomic.Int64
	uploaded atomic.Int64
	failures atomic.Int64
	bytes    atomic.Int64
}

func New(q *queue.Queue, s Syncer, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		queue:        q,
		syncer:       s,
		sem:          semaphore.NewWeighted(int64(opts.Concurrency)),
		concurrency:  opts.Concurrency,
		startupDelay: opts.StartupDelay,
		clock:        opts.Clock,
		log:          opts.Logger.With("component", "orchestrator"),
		inFlight:     make(map[string]*queue.RequestContext),
	}
}

// Run processes requests until ctx is cancelled, then waits for the requests
// already started and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.startupDelay > 0 {
		o.log.Info("waiting before processing requests", "delay", o.startupDelay)
		select {
		case <-o.clock.After(o.startupDelay):
		case <-ctx.Done():
			return nil
		}
	}

	o.log.Info("orchestrator start", "concurrency", o.concurrency)

	for {
		rc, err := o.queue.Dequeue(ctx)
		if err != nil {
			break
		}

		if err := o.sem.Acquire(ctx, 1); err != nil {
			// rc was dequeued but never runs; it stays Submitted
			o.log.Error("request dropped at shutdown", "request", rc.ID, "sources", rc.Request.Sources)
			break
		}

		o.track(rc)
		o.wg.Add(1)
		go o.process(ctx, rc)
	}

	o.wg.Wait()
	o.log.Info("orchestrator stopped")
	return nil
}

// InFlight reports the number of requests currently holding a permit.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Requests: o.requests.Load(),
		Sources:  o.sources.Load(),
		Uploaded: o.uploaded.Load(),
		Errors:   o.failures.Load(),
		Bytes:    o.bytes.Load(),
	}
}

func (o *Orchestrator) track(rc *queue.RequestContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight[rc.ID] = rc
}

func (o *Orchestrator) untrack(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, id)
}

func (o *Orchestrator) process(ctx context.Context, rc *queue.RequestContext) {
	defer o.wg.Done()
	defer o.sem.Release(1)
	defer o.untrack(rc.ID)

	log := o.log.With("request", rc.ID)

	if err := rc.MarkRunning(); err != nil {
		log.Error("cannot start request", "error", err)
		return
	}
	o.requests.Add(1)
	log.Info("request started", "sources", rc.Request.Sources)

	hadErrors := false
	for _, name := range rc.Request.Sources {
		if !o.syncSource(ctx, log, name) {
			hadErrors = true
		}
	}

	if err := rc.MarkFinished(hadErrors); err != nil {
		log.Error("cannot finish request", "error", err)
		return
	}
	log.Info("request finished", "status", rc.Status(), "elapsed", rc.FinishedAt().Sub(rc.StartedAt()))
}

// syncSource reports whether the source was handled without error. An unknown
// source is skipped, not counted as an error.
func (o *Orchestrator) syncSource(ctx context.Context, log *slog.Logger, name string) (ok bool) {
	log = log.With("source", name)

	defer func() {
		if r := recover(); r != nil {
			o.failures.Add(1)
			log.Error("sync panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			ok = false
		}
	}()

	result, err := o.syncer.Sync(ctx, name)
	if errors.Is(err, engine.ErrUnknownSource) {
		log.Warn("skipping unknown source")
		return true
	}

	o.sources.Add(1)
	if result == nil {
		result = &engine.Result{Source: name}
	}
	o.uploaded.Add(int64(result.Uploaded))
	o.bytes.Add(result.Bytes)

	if err != nil {
		o.failures.Add(1)
		log.Error("sync failed", "error", err)
		return false
	}

	log.Info("sync complete",
		"matched", result.Matched,
		"uploaded", result.Uploaded,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	return true
}
