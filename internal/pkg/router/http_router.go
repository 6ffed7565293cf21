package router

import (
	"github.com/coachai-app/coachai/app/controllers"
	"github.com/coachai-app/coachai/internal/pkg/constants"
	"github.com/coachai-app/coachai/internal/pkg/middleware"
	"github.com/coachai-app/coachai/internal/pkg/oauth"
	"github.com/coachai-app/coachai/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Initialize controllers with repositories and services
	controllers.InitializeControllers()

	h.registerPublicRoutes(app)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get(constants.PublicRoute, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"service": "coachai", "status": "ok"})
	})

	// Auth
	app.Get(constants.LogoutRoute, middleware.RequireAPISessionAuth, controllers.HandleAuthLogout)
	app.Post(constants.LogoutRoute, middleware.RequireAPISessionAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get(constants.AuthRoute, gothfiber.BeginAuthHandler)
	app.Get(constants.AuthCallbackRoute, controllers.HandleOAuthCallback)

	// Billing provider webhooks (signature-verified in controller)
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
}
