// Package admin exposes the DLQ inspection/retry and worker-stats
// operations of spec section 6 over HTTP. Like the ingest handler,
// this is framing only; all behavior lives in internal/workers, the
// metrics registry and the log client.
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
	"github.com/dimasergei/streampulse/internal/workers"
	"github.com/dimasergei/streampulse/pkg/response"
	"github.com/dimasergei/streampulse/pkg/streamerr"
)

// pool is the narrow surface the admin start/stop endpoints need,
// satisfied by *workers.Pool.
type pool interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// Handler serves the admin DLQ and worker-control endpoints.
type Handler struct {
	dlq      *workers.DLQAdmin
	log      stream.LogClient
	pool     pool
	registry *metrics.Registry
}

// NewHandler constructs a Handler.
func NewHandler(dlq *workers.DLQAdmin, log stream.LogClient, pool pool, registry *metrics.Registry) *Handler {
	return &Handler{dlq: dlq, log: log, pool: pool, registry: registry}
}

// maxDLQListCount caps how many dead-letter entries one listing
// returns; it is also the default when no count is given.
const maxDLQListCount = 100

// ListDLQ handles GET /api/v1/admin/dlq.
func (h *Handler) ListDLQ(c *gin.Context) {
	count := int64(maxDLQListCount)
	if raw := c.Query("count"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 && n < maxDLQListCount {
			count = n
		}
	}

	entries, err := h.dlq.List(c.Request.Context(), count)
	if err != nil {
		response.Error(c, streamerr.NewServiceUnavailableError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// RetryDLQ handles POST /api/v1/admin/dlq/:id/retry.
func (h *Handler) RetryDLQ(c *gin.Context) {
	id := c.Param("id")

	ok, err := h.dlq.Retry(c.Request.Context(), id)
	if err != nil {
		response.Error(c, streamerr.NewServiceUnavailableError(err.Error()))
		return
	}
	if !ok {
		response.Error(c, streamerr.NewNotFoundError("dlq entry "+id))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "entry_id": id})
}

// ListStreams handles GET /api/v1/admin/streams: the per-stream
// length/groups/first/last summary across all three logs.
func (h *Handler) ListStreams(c *gin.Context) {
	out := make(map[string]*stream.Info, 3)
	for _, name := range []stream.Name{stream.Events, stream.Processed, stream.DLQ} {
		info, err := h.log.StreamInfo(c.Request.Context(), name)
		if err != nil {
			response.Error(c, streamerr.NewServiceUnavailableError(err.Error()))
			return
		}
		out[string(name)] = info
	}
	c.JSON(http.StatusOK, out)
}

// StreamInfo handles GET /api/v1/admin/streams/:name.
func (h *Handler) StreamInfo(c *gin.Context) {
	name := stream.Name(c.Param("name"))
	switch name {
	case stream.Events, stream.Processed, stream.DLQ:
	default:
		response.Error(c, streamerr.NewValidationError("unknown stream", string(name)))
		return
	}

	info, err := h.log.StreamInfo(c.Request.Context(), name)
	if err != nil {
		response.Error(c, streamerr.NewServiceUnavailableError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, info)
}

// StartWorker handles POST /api/v1/admin/worker/start. Starting an
// already-running pool is a no-op, matching EventWorkerPool.Start. The
// workers outlive the request; they stop on StopWorker.
func (h *Handler) StartWorker(c *gin.Context) {
	if err := h.pool.Start(context.WithoutCancel(c.Request.Context())); err != nil {
		response.Error(c, streamerr.NewServiceUnavailableError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": h.pool.IsRunning()})
}

// StopWorker handles POST /api/v1/admin/worker/stop.
func (h *Handler) StopWorker(c *gin.Context) {
	h.pool.Stop()
	c.JSON(http.StatusOK, gin.H{"running": h.pool.IsRunning()})
}

// WorkerStats handles GET /api/v1/admin/worker/stats.
func (h *Handler) WorkerStats(c *gin.Context) {
	processed, failed, dlq, successRate := h.registry.WorkerStats()
	c.JSON(http.StatusOK, gin.H{
		"running":         h.pool.IsRunning(),
		"processed_count": processed,
		"failed_count":    failed,
		"dlq_count":       dlq,
		"success_rate":    successRate,
	})
}
