package routes

import (
	"net/http"
	"strings"

	"github.com/plmforge/copilot/internal/server/middleware"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/logger"
	pgxstore "github.com/plmforge/copilot/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// GetEntitiesHandler looks up entities by natural key.
func GetEntitiesHandler(c echo.Context) error {
	type entitiesResponse struct {
		Message  string          `json:"message"`
		Entities []common.Entity `json:"entities,omitempty"`
	}

	keysParam := c.QueryParam("keys")
	if keysParam == "" {
		return c.JSON(http.StatusBadRequest, entitiesResponse{
			Message: "Query parameter keys is required",
		})
	}
	keys := []string{}
	for _, key := range strings.Split(keysParam, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}

	app := c.(*middleware.AppContext).App
	graphStorage := pgxstore.NewGraphDBStorage(pgxstore.NewGraphDBStorageParams{
		Pool:         app.DBConn,
		EmbeddingDim: app.AiClient.EmbeddingDim(),
	})

	entities, err := graphStorage.GetEntities(c.Request().Context(), keys)
	if err != nil {
		logger.Error("Failed to get entities", "err", err)
		return c.JSON(http.StatusInternalServerError, entitiesResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, entitiesResponse{
		Message:  "OK",
		Entities: entities,
	})
}

// GetNeighborsHandler returns every relationship touching an entity.
func GetNeighborsHandler(c echo.Context) error {
	type neighborsResponse struct {
		Message       string                `json:"message"`
		Relationships []common.Relationship `json:"relationships,omitempty"`
	}

	key := c.Param("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, neighborsResponse{
			Message: "Entity key is required",
		})
	}

	app := c.(*middleware.AppContext).App
	graphStorage := pgxstore.NewGraphDBStorage(pgxstore.NewGraphDBStorageParams{
		Pool:         app.DBConn,
		EmbeddingDim: app.AiClient.EmbeddingDim(),
	})

	rels, err := graphStorage.Neighbors(c.Request().Context(), []string{key})
	if err != nil {
		logger.Error("Failed to get neighbors", "err", err)
		return c.JSON(http.StatusInternalServerError, neighborsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, neighborsResponse{
		Message:       "OK",
		Relationships: rels,
	})
}
