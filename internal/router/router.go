package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bhasha-ai/grader-api/internal/config"
	"github.com/bhasha-ai/grader-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AnswerKeyHandler  *handler.AnswerKeyHandler
	SubmissionHandler *handler.SubmissionHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AnswerKeyHandler != nil {
		keys := api.Group("/answer-keys", jwtMiddleware)
		deps.AnswerKeyHandler.Register(keys)
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)

		ws := app.Group("/ws", jwtMiddleware)
		deps.SubmissionHandler.RegisterProgress(ws)
	}
}
