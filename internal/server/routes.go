package server

import (
	"github.com/plmforge/copilot/internal/server/middleware"
	"github.com/plmforge/copilot/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Graph query routes
	apiRoutes.POST("/query", routes.QueryHandler)
	apiRoutes.GET("/entities", routes.GetEntitiesHandler)
	apiRoutes.GET("/entities/:key/neighbors", routes.GetNeighborsHandler)

	// Ingestion routes
	apiRoutes.POST("/ingest", routes.IngestHandler, middleware.RequireAdmin)
}
