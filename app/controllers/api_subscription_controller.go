package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/coachai-app/coachai/internal/pkg/billing"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
	"github.com/coachai-app/coachai/internal/pkg/usercontext"
)

// HandleGetSubscription returns the authenticated user's subscription state.
// Reading runs the lazy trial expiry check first, so an overdue trial comes
// back already expired.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sub, err := billingService.GetByUserID(c.UserContext(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No subscription for this user")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}

	details := entitlements.Details(entitlements.NormalizePlan(sub.Plan))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"plan":               sub.Plan,
		"status":             sub.Status,
		"monthlyCredits":     sub.MonthlyCredits,
		"creditsUsed":        sub.CreditsUsed,
		"remainingCredits":   sub.RemainingCredits(),
		"trialStartDate":     sub.TrialStartDate,
		"trialEndDate":       sub.TrialEndDate,
		"currentPeriodStart": sub.CurrentPeriodStart,
		"currentPeriodEnd":   sub.CurrentPeriodEnd,
		"cancelAtPeriodEnd":  sub.CancelAtPeriodEnd,
		"planDetails": fiber.Map{
			"name":    details.Name,
			"credits": details.Credits,
			"price":   details.Price,
		},
	})
}
