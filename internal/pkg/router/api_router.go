package router

import (
	"github.com/coachai-app/coachai/app/controllers"
	"github.com/coachai-app/coachai/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all behind the session auth guard
	v1 := api.Group("/v1", middleware.RequireAPISessionAuth)

	v1.Get("/user/me", controllers.HandleGetUserMe)
	v1.Get("/user/stats", controllers.HandleGetUserStats)

	v1.Get("/chat/sessions", controllers.HandleListChatSessions)
	v1.Post("/chat/sessions", controllers.HandleCreateChatSession)
	v1.Get("/chat/sessions/:uuid", controllers.HandleGetChatSession)
	v1.Patch("/chat/sessions/:uuid", controllers.HandleUpdateChatSession)
	v1.Delete("/chat/sessions/:uuid", controllers.HandleDeleteChatSession)
	v1.Post("/chat/send", controllers.HandleSendChatMessage)

	v1.Get("/subscription", controllers.HandleGetSubscription)

	v1.Post("/billing/checkout", controllers.HandleCreateCheckoutSession)
	v1.Post("/billing/portal", controllers.HandleCreatePortalSession)
	v1.Post("/billing/cancel", controllers.HandleCancelSubscription)
	v1.Post("/billing/reactivate", controllers.HandleReactivateSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
