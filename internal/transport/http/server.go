// Package http wires the gin engine: routes, middleware, and the
// promhttp metrics scrape endpoint. No business logic lives here.
package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/broadcast"
	"github.com/dimasergei/streampulse/internal/config"
	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/ingest"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
	"github.com/dimasergei/streampulse/internal/transport/http/handlers/admin"
	ingesthandler "github.com/dimasergei/streampulse/internal/transport/http/handlers/ingest"
	"github.com/dimasergei/streampulse/internal/transport/http/handlers/metricshandler"
	"github.com/dimasergei/streampulse/internal/transport/http/middleware"
	"github.com/dimasergei/streampulse/internal/transport/ws"
	"github.com/dimasergei/streampulse/internal/workers"
)

// workerPool is the narrow surface the admin start/stop routes need.
type workerPool interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// Deps bundles the components the HTTP server routes against.
type Deps struct {
	Ingestor *ingest.Ingestor
	DLQAdmin *workers.DLQAdmin
	Log      stream.LogClient
	Registry *metrics.Registry
	Hub      *broadcast.Hub
	Pool     workerPool
	Reg      *prometheus.Registry
	Logger   *logrus.Logger
}

// Server wraps the gin engine and its net/http.Server.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// NewServer builds the routed gin engine bound to cfg's host/port.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Logger(deps.Logger), middleware.Recovery(deps.Logger), middleware.NewMetrics(deps.Reg))

	ingestH := ingesthandler.NewHandler(deps.Ingestor)
	adminH := admin.NewHandler(deps.DLQAdmin, deps.Log, deps.Pool, deps.Registry)
	metricsH := metricshandler.NewHandler(deps.Registry)
	wsH := ws.NewHandler(deps.Hub, deps.Logger)

	api := engine.Group("/api/v1")
	{
		api.POST("/ingest", ingestH.Ingest)
		api.GET("/ingest/stats/:day", ingestH.DailyStats)
		api.GET("/admin/dlq", adminH.ListDLQ)
		api.POST("/admin/dlq/:id/retry", adminH.RetryDLQ)
		api.GET("/admin/streams", adminH.ListStreams)
		api.GET("/admin/streams/:name", adminH.StreamInfo)
		api.POST("/admin/worker/start", adminH.StartWorker)
		api.POST("/admin/worker/stop", adminH.StopWorker)
		api.GET("/admin/worker/stats", adminH.WorkerStats)
		api.GET("/metrics/summary", metricsH.Summary)
	}
	engine.GET("/ws", wsH.Handle)
	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Reg, promhttp.HandlerOpts{})))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: deps.Logger,
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
