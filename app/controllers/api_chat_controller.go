package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/coachai-app/coachai/internal/pkg/chat"
	"github.com/coachai-app/coachai/internal/pkg/usercontext"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

type updateSessionRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// HandleListChatSessions returns the user's sessions, most recent first.
func HandleListChatSessions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	items, err := chatService.ListSessions(c.UserContext(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load sessions")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"sessions": items})
}

// HandleCreateChatSession starts a new conversation.
func HandleCreateChatSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	session, err := chatService.CreateSession(c.UserContext(), userCtx.UserID, req.Title)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create session")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"uuid":      session.UUID,
		"title":     session.Title,
		"createdAt": session.CreatedAt,
	})
}

// HandleGetChatSession returns one session including its full message history.
func HandleGetChatSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	session, err := chatService.GetSession(c.UserContext(), userCtx.UserID, c.Params("uuid"))
	if err != nil {
		return chatError(c, err, "Failed to load session")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"uuid":      session.UUID,
		"title":     session.Title,
		"messages":  session.Messages,
		"createdAt": session.CreatedAt,
		"updatedAt": session.UpdatedAt,
	})
}

// HandleUpdateChatSession renames a session.
func HandleUpdateChatSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req updateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	session, err := chatService.UpdateTitle(c.UserContext(), userCtx.UserID, c.Params("uuid"), req.Title)
	if err != nil {
		if errors.Is(err, chat.ErrTitleRequired) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Title must not be empty")
		}
		return chatError(c, err, "Failed to update session")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"uuid":  session.UUID,
		"title": session.Title,
	})
}

// HandleDeleteChatSession removes a session and all its messages.
func HandleDeleteChatSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if err := chatService.DeleteSession(c.UserContext(), userCtx.UserID, c.Params("uuid")); err != nil {
		return chatError(c, err, "Failed to delete session")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleSendChatMessage runs one coaching exchange: user message in,
// assistant reply out, one credit consumed.
func HandleSendChatMessage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	result, err := chatService.SendMessage(c.UserContext(), userCtx.UserID, req.SessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Message must not be empty")
		case errors.Is(err, chat.ErrNoCredits):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "payment_required",
				"code":    "NO_CREDITS",
				"message": "No chat credits remaining. Upgrade your plan to continue.",
			})
		case errors.Is(err, chat.ErrNoCompleter):
			return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Chat is temporarily unavailable")
		default:
			return chatError(c, err, "Failed to send message")
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"sessionId":        result.SessionUUID,
		"userMessage":      result.UserMessage,
		"assistantMessage": result.AssistantMessage,
		"remainingCredits": result.RemainingCredits,
	})
}

// chatError maps chat service errors onto API status codes.
func chatError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Chat session not found")
	case errors.Is(err, chat.ErrNotSessionOwner):
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Chat session belongs to another user")
	default:
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", fallback)
	}
}
