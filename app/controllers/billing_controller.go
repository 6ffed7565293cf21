package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/coachai-app/coachai/internal/pkg/billing"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
	"github.com/coachai-app/coachai/internal/pkg/env"
	"github.com/coachai-app/coachai/internal/pkg/session"
	"github.com/coachai-app/coachai/internal/pkg/usercontext"
)

type checkoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

// HandleCreateCheckoutSession starts a Stripe Checkout flow for a paid plan.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	plan := entitlements.NormalizePlan(req.Plan)
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = base + "/billing/success"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = base + "/pricing"
	}

	url, err := billingService.CreateCheckoutSession(c.UserContext(), userCtx.UserID, plan, successURL, cancelURL)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPlanNotPurchasable):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Plan cannot be purchased")
		case errors.Is(err, billing.ErrPriceNotConfigured):
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Plan is not configured for checkout")
		default:
			log.WithError(err).Warn("checkout session failed")
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create checkout session")
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

// HandleCreatePortalSession opens the Stripe customer portal.
func HandleCreatePortalSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req portalRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/") + "/account"
	}

	url, err := billingService.CreatePortalSession(c.UserContext(), userCtx.UserID, returnURL)
	if err != nil {
		if errors.Is(err, billing.ErrNoStripeCustomer) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "No billing account for this user")
		}
		log.WithError(err).Warn("portal session failed")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create portal session")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

// HandleCancelSubscription schedules the cancellation at period end.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if err := billingService.CancelSubscription(c.UserContext(), userCtx.UserID); err != nil {
		switch {
		case errors.Is(err, billing.ErrSubscriptionNotFound), errors.Is(err, billing.ErrNoStripeSubscription):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "No active paid subscription to cancel")
		default:
			log.WithError(err).Warn("cancel subscription failed")
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to cancel subscription")
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleReactivateSubscription undoes a pending cancellation while the paid
// period is still running.
func HandleReactivateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if err := billingService.ReactivateSubscription(c.UserContext(), userCtx.UserID); err != nil {
		switch {
		case errors.Is(err, billing.ErrSubscriptionNotFound), errors.Is(err, billing.ErrNoStripeSubscription):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "No subscription to reactivate")
		case errors.Is(err, billing.ErrNotCanceled):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Subscription is not scheduled for cancellation")
		case errors.Is(err, billing.ErrBillingPeriodOver):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Billing period already ended")
		default:
			log.WithError(err).Warn("reactivate subscription failed")
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to reactivate subscription")
		}
	}

	// Drop the cached plan so the next request re-reads it
	_ = session.SetSessionValue(c, usercontext.KeyPlan, "")

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleStripeWebhook verifies and processes Stripe events. Signature
// failures are rejected before anything is persisted; everything after
// verification is recorded for idempotent replay.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	event, err := billingService.ConstructWebhookEvent(rawBody, signature)
	if err != nil {
		log.WithError(err).Warn("stripe webhook signature verification failed")
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
	}

	if err := billingService.HandleWebhookEvent(c.UserContext(), event); err != nil {
		log.WithError(err).WithField("event", event.ID).Error("stripe webhook processing failed")
		return jsonError(c, fiber.StatusInternalServerError, "webhook_processing_failed", "Failed to process event")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
