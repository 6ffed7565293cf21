package controllers

import (
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/coachai-app/coachai/app/repository"
	"github.com/coachai-app/coachai/internal/pkg/account"
	"github.com/coachai-app/coachai/internal/pkg/billing"
	"github.com/coachai-app/coachai/internal/pkg/chat"
	"github.com/coachai-app/coachai/internal/pkg/database"
)

const (
	FROM_PROTECTED string = "from_protected"

	AUTH_KEY  string = "authenticated"
	USER_ID   string = "user_id"
	USER_NAME string = "username"
)

var (
	accountService *account.Service
	billingService *billing.Service
	chatService    *chat.Service
)

// InitializeControllers wires the shared services from the global repository
// factory. Called once during router installation.
func InitializeControllers() {
	repository.InitializeFactory(database.GetDB())
	factory := repository.GetGlobalFactory()

	users := factory.GetUserRepository()
	subs := factory.GetSubscriptionRepository()
	sessions := factory.GetChatSessionRepository()
	messages := factory.GetMessageRepository()
	events := factory.GetWebhookEventRepository()

	accountService = account.NewService(users, subs, sessions, messages)
	billingService = billing.NewService(subs, users, events, billing.NewStripeGateway())

	completer, err := chat.NewOpenAICompleter()
	if err != nil {
		log.Warnf("Chat completion disabled: %v", err)
	}
	chatService = chat.NewService(sessions, messages, accountService, completer)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}
