// Package metricshandler exposes the MetricsRegistry summary over HTTP
// and wires the Prometheus scrape endpoint. Named metricshandler (not
// metrics) to avoid colliding with internal/core/services/metrics.
package metricshandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dimasergei/streampulse/internal/core/services/metrics"
)

// Handler serves GET /api/v1/metrics/summary.
type Handler struct {
	registry *metrics.Registry
}

// NewHandler constructs a Handler.
func NewHandler(registry *metrics.Registry) *Handler {
	return &Handler{registry: registry}
}

// Summary handles GET /api/v1/metrics/summary.
func (h *Handler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Summary())
}
