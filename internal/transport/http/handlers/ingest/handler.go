// Package ingest is the thin HTTP adapter in front of
// internal/core/services/ingest.Ingestor. It holds no business logic:
// it decodes the request body, calls the core service, and maps the
// result (or error) to a response, matching the teacher's
// handler/service split.
package ingest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/ingest"
	"github.com/dimasergei/streampulse/pkg/response"
	"github.com/dimasergei/streampulse/pkg/streamerr"
)

// Handler serves POST /api/v1/ingest.
type Handler struct {
	ingestor *ingest.Ingestor
}

// NewHandler constructs a Handler.
func NewHandler(ingestor *ingest.Ingestor) *Handler {
	return &Handler{ingestor: ingestor}
}

type ingestRequest struct {
	Events []eventPayload `json:"events" binding:"required"`
}

type eventPayload struct {
	Timestamp string                 `json:"timestamp"`
	Type      string                 `json:"type"`
	Value     float64                `json:"value"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Ingest handles POST /api/v1/ingest.
func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, streamerr.NewValidationError("malformed request body", err.Error()))
		return
	}

	events := make([]stream.Event, len(req.Events))
	for i, e := range req.Events {
		events[i] = stream.Event{Timestamp: e.Timestamp, Type: e.Type, Value: e.Value, Metadata: e.Metadata}
	}

	result, err := h.ingestor.IngestBatch(c.Request.Context(), events)
	if err != nil {
		response.Error(c, streamerr.NewValidationError("batch rejected", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            result.Success,
		"ingested":           result.Ingested,
		"total":              result.Total,
		"processing_time_ms": result.ProcessingTimeMs,
		"batch_id":           result.BatchID,
	})
}

// DailyStats handles GET /api/v1/ingest/stats/:day, day formatted
// "2006-01-02". A day with no recorded traffic reports all zeros.
func (h *Handler) DailyStats(c *gin.Context) {
	day := c.Param("day")
	total, ingested, failed := h.ingestor.DailyStats(day)
	c.JSON(http.StatusOK, gin.H{
		"day":      day,
		"total":    total,
		"ingested": ingested,
		"failed":   failed,
	})
}
