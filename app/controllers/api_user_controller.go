package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/coachai-app/coachai/internal/pkg/account"
	"github.com/coachai-app/coachai/internal/pkg/usercontext"
)

// HandleGetUserMe returns profile and credit data for the authenticated user.
func HandleGetUserMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	user, err := accountService.GetByID(c.UserContext(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	remaining, err := accountService.RemainingCredits(c.UserContext(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load credits")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":               user.ID,
		"email":            user.Email,
		"name":             user.Name,
		"avatarUrl":        user.AvatarURL,
		"plan":             userCtx.Plan,
		"remainingCredits": remaining,
		"createdAt":        user.CreatedAt,
	})
}

// HandleGetUserStats returns aggregate usage numbers for the dashboard.
func HandleGetUserStats(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	stats, err := accountService.GetStats(c.UserContext(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load statistics")
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}
