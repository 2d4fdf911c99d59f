package worker

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/engine"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/queue"
)

// Sweeper periodically submits a request covering every known source.
type Sweeper struct {
	queue    *queue.Queue
	provider engine.SourceProvider
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
}

// NewSweeper returns a sweeper; an interval <= 0 disables it.
func NewSweeper(q *queue.Queue, provider engine.SourceProvider, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		queue:    q,
		provider: provider,
		interval: interval,
		clock:    clock,
		log:      logger.With("component", "sweeper"),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}

	s.log.Info("sweeper start", "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sources := s.provider.GetKnownSources()
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)

	req, err := queue.NewSyncRequest(names...)
	if err != nil {
		s.log.Error("cannot build sweep request", "error", err)
		return
	}

	rc, ok := s.queue.Submit(ctx, req)
	if !ok {
		s.log.Warn("sweep request rejected, queue full", "request", rc.ID)
		return
	}
	s.log.Debug("sweep request submitted", "request", rc.ID, "sources", names)
}
