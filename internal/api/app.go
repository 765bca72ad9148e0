package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the fiber application serving h. A nil metrics handler
// leaves /metrics unrouted.
func NewApp(h *Handler, metrics fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "crop-price",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	h.Register(app)
	if metrics != nil {
		app.Get("/metrics", metrics)
	}
	return app
}
