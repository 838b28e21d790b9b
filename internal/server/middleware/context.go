package middleware

import (
	"github.com/plmforge/copilot/internal/storage"
	"github.com/plmforge/copilot/pkg/ai"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
)

// AppUser is the authenticated caller, set by AuthMiddleware.
type AppUser struct {
	Subject string
	Role    string
}

// App bundles the shared clients every handler needs.
type App struct {
	DBConn       *pgxpool.Pool
	Queue        *amqp091.Channel
	Key          *keyfunc.Keyfunc
	S3           *storage.Client
	AiClient     ai.GraphAIClient
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
