// Package app is the composition root: it wires the log client,
// metrics registry, ingestor, worker pool, retry scheduler, broadcast
// hub and HTTP server into explicit dependencies and supervises them
// together, replacing the original's module-scoped singletons.
// Grounded on the teacher's App.Start() (errgroup supervising the HTTP
// and gRPC servers together).
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dimasergei/streampulse/internal/broadcast"
	"github.com/dimasergei/streampulse/internal/config"
	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/ingest"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
	"github.com/dimasergei/streampulse/internal/infrastructure/logstream"
	httptransport "github.com/dimasergei/streampulse/internal/transport/http"
	"github.com/dimasergei/streampulse/internal/workers"
)

// metricsUpdateInterval is the cadence of the metrics updater task,
// independent of (but the same cadence as) the broadcast loop.
const metricsUpdateInterval = 5 * time.Second

// App holds every long-lived component the process supervises.
type App struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *metrics.Registry
	promReg  *prometheus.Registry
	log      stream.LogClient
	hub      *broadcast.Hub
	pool     *workers.Pool
	server   *httptransport.Server
}

// New builds an App from cfg. It does not start anything. A malformed
// Redis URL is the one fatal construction error: there is no pipeline
// without the log service.
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	promReg := prometheus.NewRegistry()
	registry := metrics.New(promReg, metrics.Targets{
		ThroughputTarget:   cfg.Pipeline.ThroughputTarget,
		LatencyTargetP95Ms: cfg.Pipeline.LatencyTargetP95Ms,
	})

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.Redis.PoolSize
	opts.MaxRetries = cfg.Redis.MaxRetries
	rdb := redis.NewClient(opts)
	logClient := logstream.New(rdb, logger)

	hub := broadcast.NewHub(registry, logClient, logger)

	retry := workers.NewRetryScheduler(logClient, registry, logger, cfg.Pipeline.DLQMaxRetries, cfg.Pipeline.DLQBackoffBase, cfg.Pipeline.DLQEnabled)
	pool := workers.NewPool(logClient, registry, retry, hub, logger, workers.Config{
		WorkerCount:   cfg.Pipeline.WorkerCount,
		MaxBatch:      int64(cfg.Pipeline.MaxBatchSize),
		BlockDuration: cfg.Pipeline.BlockDuration,
		WindowSize:    cfg.Pipeline.AnomalyWindowSize,
		Threshold:     cfg.Pipeline.AnomalyThreshold,
	})

	ingestor := ingest.New(logClient, registry, logger, cfg.Pipeline.MaxBatchSize)
	dlqAdmin := workers.NewDLQAdmin(logClient, logger)

	server := httptransport.NewServer(&cfg.Server, httptransport.Deps{
		Ingestor: ingestor,
		DLQAdmin: dlqAdmin,
		Log:      logClient,
		Registry: registry,
		Hub:      hub,
		Pool:     pool,
		Reg:      promReg,
		Logger:   logger,
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		promReg:  promReg,
		log:      logClient,
		hub:      hub,
		pool:     pool,
		server:   server,
	}, nil
}

// Start launches the worker pool, metrics updater, broadcast loop and
// HTTP server together and blocks until ctx is canceled or one of them
// returns an error.
func (a *App) Start(ctx context.Context) error {
	if err := a.pool.Start(ctx); err != nil {
		return err
	}
	defer a.pool.Stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.runMetricsUpdater(ctx)
		return nil
	})

	group.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})

	group.Go(func() error {
		return a.server.Start(ctx)
	})

	return group.Wait()
}

// StartWorker runs only the processing pool and metrics updater,
// without the HTTP server or broadcast hub. It lets the worker pool
// scale independently of the API process, the way the teacher splits
// its API and background-job binaries.
func (a *App) StartWorker(ctx context.Context) error {
	if err := a.pool.Start(ctx); err != nil {
		return err
	}
	defer a.pool.Stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.runMetricsUpdater(ctx)
		return nil
	})
	return group.Wait()
}

// runMetricsUpdater is the 1 metrics updater task of §5: every
// metricsUpdateInterval it refreshes the throughput/latency/uptime
// gauges and, when throughput falls under 80% of target, tells the
// broadcast hub to warn subscribers.
func (a *App) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			throughput := a.registry.UpdateThroughput()
			a.registry.UpdateLatencyP95()
			a.registry.UpdateUptime()

			if below, threshold, ratio := a.registry.ThroughputBelowTarget(throughput); below {
				a.hub.NotifyThroughputWarning(throughput, float64(a.cfg.Pipeline.ThroughputTarget), threshold, ratio)
			}
		}
	}
}
