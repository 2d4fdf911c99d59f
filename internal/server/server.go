package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/config"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/logging"
	"github.com/yuya-takeyama/manifest-s3-sync/internal/worker"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/engine"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/logger"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/manifest"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/queue"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/s3client"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Version string
	// Sink overrides the blob sink built from the config.
	Sink   s3client.Client
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Server accepts sync requests over HTTP and processes them in the
// background until its context is cancelled.
type Server struct {
	config  *config.Config
	server  *http.Server
	log     *slog.Logger
	store   *manifest.Store
	queue   *queue.Queue
	orch    *worker.Orchestrator
	sweeper *worker.Sweeper
}

func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	setGinMode(cfg.Env)

	sink := opts.Sink
	if sink == nil {
		var err error
		sink, err = NewSink(context.Background(), cfg, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	store := manifest.NewStore(cfg.ManifestDir, opts.Clock)
	eng := engine.New(sink, store, cfg, engine.Options{
		Logger: &logger.SyncLogger{Log: opts.Logger, IsDryRun: cfg.DryRun},
		DryRun: cfg.DryRun,
	})
	q := queue.New(cfg.Queue.Capacity, cfg.Queue.AdmissionTimeout)
	orch := worker.New(q, eng, worker.Options{
		Concurrency:  cfg.Worker.Concurrency,
		StartupDelay: cfg.Worker.StartupDelay,
		Clock:        opts.Clock,
		Logger:       opts.Logger,
	})
	sweeper := worker.NewSweeper(q, cfg, cfg.Worker.SweepInterval, opts.Clock, opts.Logger)

	h := &handler{queue: q, version: opts.Version}

	return &Server{
		config:  cfg,
		log:     opts.Logger,
		store:   store,
		queue:   q,
		orch:    orch,
		sweeper: sweeper,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           SetupRoutes(h, cfg.APIKey, opts.Logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewSink builds the blob sink for cfg: an S3 client, or a logging client in
// dry-run mode without a bucket.
func NewSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (s3client.Client, error) {
	if cfg.Blob.BucketName == "" {
		if !cfg.DryRun {
			return nil, config.ErrNoBucket
		}
		return s3client.NewDryRunClient("", log), nil
	}

	awsCfg, err := s3client.LoadAWSConfig(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3client.NewAWSClient(awsCfg, cfg.Blob), nil
}

// Start takes the manifest directory lock and runs the HTTP server, the
// orchestrator and the sweeper until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.store.Lock(); err != nil {
		return err
	}
	defer s.store.Unlock()

	s.log.Info("manifest-s3-sync server start",
		"addr", s.config.HTTP.Addr,
		"sources", s.config.SourceNames(),
		"manifests", s.store.Dir(),
		"dryRun", s.config.DryRun,
	)
	defer s.log.Info("manifest-s3-sync server stop")

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return s.orch.Run(egCtx)
	})

	eg.Go(func() error {
		return s.sweeper.Run(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		s.log.Info("received shutdown signal, stopping server")
		return s.Stop(context.Background())
	})

	err = eg.Wait()
	stats := s.orch.Stats()
	logging.LogSummary(s.log, logging.Summary{
		Sources:  int(stats.Sources),
		Uploaded: int(stats.Uploaded),
		Failed:   int(stats.Errors),
		Bytes:    stats.Bytes,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("server failure", "error", err)
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Handler exposes the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Queue() *queue.Queue {
	return s.queue
}

func setGinMode(env string) {
	switch env {
	case config.EnvDevelopment:
		gin.SetMode(gin.DebugMode)
	case config.EnvTest:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
}
