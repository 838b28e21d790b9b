package routes

import (
	"encoding/json"
	"net/http"

	"github.com/plmforge/copilot/internal/queue"
	"github.com/plmforge/copilot/internal/server/middleware"
	"github.com/plmforge/copilot/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// IngestHandler enqueues an ingest job for the worker. The job names either
// an object storage prefix, local paths, or both.
func IngestHandler(c echo.Context) error {
	type ingestRequest struct {
		Prefix string   `json:"prefix"`
		Paths  []string `json:"paths"`
	}

	type ingestResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(ingestRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{
			Message: "Invalid request body",
		})
	}
	if data.Prefix == "" && len(data.Paths) == 0 {
		return c.JSON(http.StatusBadRequest, ingestResponse{
			Message: "Either prefix or paths must be set",
		})
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Internal server error",
		})
	}

	job := queue.QueueIngestJobMsg{
		Message:       "Ingest requested",
		CorrelationID: correlationID,
		Prefix:        data.Prefix,
		Paths:         data.Paths,
	}
	msgBytes, err := json.Marshal(job)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, "ingest_queue", msgBytes); err != nil {
		logger.Error("Failed to publish to ingest_queue", "err", err)
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, ingestResponse{
		Message:       "Ingest job queued",
		CorrelationID: correlationID,
	})
}
