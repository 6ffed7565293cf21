package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coachai-app/coachai/internal/pkg/session"
)

// HandleAuthLogout destroys the app session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}

	if err := sess.Destroy(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to destroy session")
	}

	c.Locals(FROM_PROTECTED, false)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
