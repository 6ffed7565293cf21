package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	logrus "github.com/sirupsen/logrus"

	"github.com/coachai-app/coachai/internal/pkg/billing"
	"github.com/coachai-app/coachai/internal/pkg/cache"
	"github.com/coachai-app/coachai/internal/pkg/database"
	"github.com/coachai-app/coachai/internal/pkg/env"
	"github.com/coachai-app/coachai/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()

	if env.IsDev() {
		logrus.SetLevel(logrus.DebugLevel)
	}

	database.SetupDatabase()
	cache.SetupCache()
	billing.InitStripe()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:      "CoachAI",
		ErrorHandler: handleError,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

// handleError keeps unhandled failures in the same JSON shape the API
// controllers use.
func handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}
	if code >= fiber.StatusInternalServerError {
		logrus.WithField("path", c.Path()).Errorf("unhandled error: %v", err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "request_failed",
		"message": message,
	})
}
