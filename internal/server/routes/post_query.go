package routes

import (
	"net/http"

	"github.com/plmforge/copilot/internal/server/middleware"
	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/logger"
	"github.com/plmforge/copilot/pkg/query"
	pgxstore "github.com/plmforge/copilot/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// QueryHandler answers one question over the knowledge graph.
func QueryHandler(c echo.Context) error {
	type queryRequest struct {
		Question string `json:"question" validate:"required"`

		SeedK    int `json:"seed_k"`
		HopLimit int `json:"hop_limit"`
	}

	type citationData struct {
		RecordID string `json:"record_id"`
		Source   string `json:"source,omitempty"`
	}

	type queryResponse struct {
		Message       string           `json:"message"`
		Answer        string           `json:"answer,omitempty"`
		Citations     []citationData   `json:"citations,omitempty"`
		LowConfidence bool             `json:"low_confidence,omitempty"`
		Metrics       *ai.ModelMetrics `json:"metrics,omitempty"`
	}

	data := new(queryRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	aiClient := app.AiClient

	graphStorage := pgxstore.NewGraphDBStorage(pgxstore.NewGraphDBStorageParams{
		Pool:         app.DBConn,
		EmbeddingDim: aiClient.EmbeddingDim(),
	})

	opts := query.DefaultQueryOptions()
	if data.SeedK > 0 {
		opts.SeedK = data.SeedK
	}
	if data.HopLimit > 0 {
		opts.HopLimit = data.HopLimit
	}

	queryClient, err := query.NewQueryClient(query.NewQueryClientParams{
		AIClient: aiClient,
		Storage:  graphStorage,
		Options:  opts,
	})
	if err != nil {
		logger.Error("[Query] failed to create query client", "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	aiClient.ResetMetrics()
	answer, err := queryClient.Ask(ctx, data.Question)
	if err != nil {
		logger.Error("[Query] graph error", "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	citations := make([]citationData, 0, len(answer.Citations))
	if len(answer.Citations) > 0 {
		records, err := graphStorage.GetRecords(ctx, answer.Citations)
		if err != nil {
			logger.Error("[Query] failed to resolve citations", "err", err)
		}
		sourceByID := map[string]string{}
		for _, rec := range records {
			sourceByID[rec.ID] = rec.Source
		}
		for _, id := range answer.Citations {
			citations = append(citations, citationData{
				RecordID: id,
				Source:   sourceByID[id],
			})
		}
	}

	metrics := aiClient.GetMetrics()
	return c.JSON(http.StatusOK, queryResponse{
		Message:       "OK",
		Answer:        answer.Text,
		Citations:     citations,
		LowConfidence: answer.LowConfidence,
		Metrics:       &metrics,
	})
}
