package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/coachai-app/coachai/app/models"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"
)

// ConstructWebhookEvent verifies the provider signature and parses the
// payload. Callers must reject the request without touching any state when
// this fails.
func (s *Service) ConstructWebhookEvent(payload []byte, signatureHeader string) (*stripe.Event, error) {
	return s.gateway.ConstructWebhookEvent(payload, signatureHeader)
}

// HandleWebhookEvent dispatches a verified provider event. Processing is
// idempotent: each event id is recorded once, and replays of an already
// processed event are acknowledged without re-applying state changes.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *stripe.Event) error {
	created, stored, err := s.events.CreateIfNotExists(&models.WebhookEvent{
		StripeEventID: event.ID,
		EventType:     string(event.Type),
		PayloadJSON:   string(event.Data.Raw),
	})
	if err != nil {
		return err
	}
	if !created && stored.ProcessedAt != nil {
		log.WithFields(log.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Info("webhook event already processed, skipping replay")
		return nil
	}

	handleErr := s.dispatchWebhookEvent(ctx, event)
	if handleErr != nil {
		// Keep processed_at empty so the provider's redelivery retries the handler
		if recErr := s.events.RecordFailure(stored.ID, handleErr.Error()); recErr != nil {
			log.WithError(recErr).WithField("event_id", event.ID).
				Error("failed to record webhook event failure")
		}
		return handleErr
	}
	if markErr := s.events.MarkProcessed(stored.ID); markErr != nil {
		log.WithError(markErr).WithField("event_id", event.ID).
			Error("failed to mark webhook event processed")
	}
	return nil
}

func (s *Service) dispatchWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaymentSucceeded(ctx, event)
	case "invoice.payment_failed":
		return s.handleInvoicePaymentFailed(ctx, event)
	default:
		// Forward compatible: unknown event types are fine to ignore.
		log.WithField("event_type", event.Type).Info("ignoring unhandled stripe event")
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return err
	}

	userID, plan, ok := correlationFromMetadata(sess.Metadata)
	if !ok {
		log.WithField("event_id", event.ID).
			Warn("checkout session missing correlation metadata, dropping")
		return nil
	}
	if sess.Subscription == nil {
		log.WithField("event_id", event.ID).
			Warn("checkout session has no subscription, dropping")
		return nil
	}

	info, err := s.gateway.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return err
	}

	customerID := info.CustomerID
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	logWithUser(userID).WithField("plan", plan).Info("activating subscription after checkout")
	return s.Activate(ctx, userID, plan, ActivationData{
		CustomerID:     customerID,
		SubscriptionID: info.ID,
		PriceID:        info.PriceID,
		PeriodStart:    info.CurrentPeriodStart,
		PeriodEnd:      info.CurrentPeriodEnd,
	})
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return err
	}

	local, err := s.resolveLocalSubscription(&stripeSub)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			log.WithField("stripe_subscription_id", stripeSub.ID).
				Warn("subscription event for unknown subscription, dropping")
			return nil
		}
		return err
	}

	periodEnd := time.Unix(stripeSub.CurrentPeriodEnd, 0)
	// Stale-delivery guard: an update carrying an older billing period than
	// the one on record must not roll local state backwards.
	if local.CurrentPeriodEnd != nil && periodEnd.Before(*local.CurrentPeriodEnd) {
		log.WithFields(log.Fields{
			"event_id":   event.ID,
			"user_id":    local.UserID,
			"period_end": periodEnd,
		}).Info("stale subscription event, skipping")
		return nil
	}

	plan := entitlements.NormalizePlan(stripeSub.Metadata["plan"])
	if !entitlements.IsPaid(plan) {
		plan = entitlements.PlanBasic
	}

	status := models.SubscriptionStatusActive
	switch {
	case stripeSub.Status == stripe.SubscriptionStatusTrialing:
		status = models.SubscriptionStatusTrial
	case stripeSub.Status == stripe.SubscriptionStatusPastDue:
		status = models.SubscriptionStatusPastDue
	case stripeSub.CancelAtPeriodEnd:
		status = models.SubscriptionStatusCanceled
	}

	priceID := ""
	if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 && stripeSub.Items.Data[0].Price != nil {
		priceID = stripeSub.Items.Data[0].Price.ID
	}

	return s.subs.UpdateFields(local.UserID, map[string]interface{}{
		"plan":                   string(plan),
		"status":                 status,
		"monthly_credits":        entitlements.MonthlyCredits(plan),
		"stripe_subscription_id": stripeSub.ID,
		"stripe_price_id":        priceID,
		"current_period_start":   time.Unix(stripeSub.CurrentPeriodStart, 0),
		"current_period_end":     periodEnd,
		"cancel_at_period_end":   stripeSub.CancelAtPeriodEnd,
	})
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return err
	}

	local, err := s.subs.GetByStripeSubscriptionID(stripeSub.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithField("stripe_subscription_id", stripeSub.ID).
				Warn("deletion event for unknown subscription, dropping")
			return nil
		}
		return err
	}

	logWithUser(local.UserID).Info("expiring subscription after upstream deletion")
	return s.Expire(ctx, local.UserID)
}

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return err
	}
	if invoice.Subscription == nil {
		return nil
	}
	// Only cycle renewals reset credits; the initial subscription invoice
	// is handled by checkout completion.
	if invoice.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		return nil
	}

	local, err := s.subs.GetByStripeSubscriptionID(invoice.Subscription.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	info, err := s.gateway.GetSubscription(ctx, invoice.Subscription.ID)
	if err != nil {
		return err
	}

	logWithUser(local.UserID).Info("renewing subscription for new billing cycle")
	return s.Renew(ctx, local.UserID, info.CurrentPeriodStart, info.CurrentPeriodEnd)
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return err
	}
	if invoice.Subscription == nil {
		return nil
	}

	local, err := s.subs.GetByStripeSubscriptionID(invoice.Subscription.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	logWithUser(local.UserID).Warn("invoice payment failed, marking past due")
	return s.MarkPastDue(ctx, local.UserID)
}

// resolveLocalSubscription correlates a provider subscription with a local
// row, preferring the userId metadata and falling back to the stored
// provider subscription id.
func (s *Service) resolveLocalSubscription(stripeSub *stripe.Subscription) (*models.Subscription, error) {
	if raw, ok := stripeSub.Metadata["userId"]; ok {
		if userID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			sub, err := s.subs.GetByUserID(uint(userID))
			if err == nil {
				return sub, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
	}
	sub, err := s.subs.GetByStripeSubscriptionID(stripeSub.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func correlationFromMetadata(metadata map[string]string) (uint, entitlements.Plan, bool) {
	rawUser, okUser := metadata["userId"]
	rawPlan, okPlan := metadata["plan"]
	if !okUser || !okPlan {
		return 0, "", false
	}
	userID, err := strconv.ParseUint(rawUser, 10, 64)
	if err != nil || userID == 0 {
		return 0, "", false
	}
	plan := entitlements.NormalizePlan(rawPlan)
	if !entitlements.IsPaid(plan) {
		return 0, "", false
	}
	return uint(userID), plan, true
}
