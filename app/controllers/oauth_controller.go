package controllers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/coachai-app/coachai/internal/pkg/account"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
	"github.com/coachai-app/coachai/internal/pkg/session"
	"github.com/coachai-app/coachai/internal/pkg/usercontext"
)

// HandleOAuthCallback completes the Google flow and logs the user in
func HandleOAuthCallback(c *fiber.Ctx) error {
	// Complete OAuth with provider and obtain unified user
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("OAuth failed: %v", err))
	}

	ctx := c.UserContext()

	// Try to find an existing account linked to this Google identity
	appUser, err := accountService.GetByGoogleID(ctx, u.UserID)
	if errors.Is(err, account.ErrUserNotFound) && u.Email != "" {
		// Optional email match so pre-existing accounts get linked
		appUser, err = accountService.GetByEmail(ctx, u.Email)
		if err == nil && appUser.GoogleID == "" {
			appUser.GoogleID = u.UserID
			appUser.AvatarURL = u.AvatarURL
			if uerr := accountService.LinkGoogleAccount(ctx, appUser); uerr != nil {
				return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("link account failed: %v", uerr))
			}
		}
	}
	if errors.Is(err, account.ErrUserNotFound) {
		// First login: create the user with a trial subscription
		name := firstNonEmpty(u.Name, u.NickName, u.Email, "User")
		appUser, err = accountService.CreateUser(ctx, u.Email, name, u.AvatarURL, u.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("create user failed: %v", err))
		}
	} else if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("db error: %v", err))
	}

	// Create app session
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session init failed")
	}
	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, appUser.ID)
	sess.Set(USER_NAME, appUser.Name)
	// Cache user plan in session for entitlement checks
	if sub, err := billingService.GetByUserID(ctx, appUser.ID); err == nil && sub.Plan != "" {
		sess.Set(usercontext.KeyPlan, sub.Plan)
	} else {
		sess.Set(usercontext.KeyPlan, string(entitlements.PlanFree))
	}
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session save failed")
	}

	return c.Redirect("/", fiber.StatusSeeOther)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
