package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/coachai-app/coachai/app/models"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
)

func makeEvent(id, eventType, payload string) *stripe.Event {
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

func checkoutCompletedPayload(userID uint, plan string) string {
	return fmt.Sprintf(`{
		"id": "cs_1",
		"customer": {"id": "cus_1"},
		"subscription": {"id": "sub_1"},
		"metadata": {"userId": "%d", "plan": "%s"}
	}`, userID, plan)
}

func subscriptionPayload(userID uint, status string, cancelAtPeriodEnd bool, periodStart, periodEnd time.Time) string {
	return fmt.Sprintf(`{
		"id": "sub_1",
		"status": "%s",
		"cancel_at_period_end": %t,
		"current_period_start": %d,
		"current_period_end": %d,
		"metadata": {"userId": "%d", "plan": "BASIC"},
		"items": {"data": [{"price": {"id": "price_basic"}}]}
	}`, status, cancelAtPeriodEnd, periodStart.Unix(), periodEnd.Unix(), userID)
}

func invoicePayload(billingReason string) string {
	return fmt.Sprintf(`{
		"id": "in_1",
		"subscription": {"id": "sub_1"},
		"billing_reason": "%s"
	}`, billingReason)
}

func (e *billingEnv) seedActiveBasic(t *testing.T, periodEnd time.Time) uint {
	t.Helper()
	return e.seedUser(t, func(sub *models.Subscription) {
		sub.Plan = string(entitlements.PlanBasic)
		sub.Status = models.SubscriptionStatusActive
		sub.MonthlyCredits = 50
		sub.CreditsUsed = 30
		sub.StripeCustomerID = "cus_1"
		sub.StripeSubscriptionID = "sub_1"
		sub.CurrentPeriodEnd = &periodEnd
	})
}

func TestHandleCheckoutCompletedActivates(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	periodStart := time.Now()
	periodEnd := periodStart.AddDate(0, 1, 0)
	e.gateway.subscriptions["sub_1"] = &SubscriptionInfo{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		PriceID:            "price_basic",
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
	}

	event := makeEvent("evt_1", "checkout.session.completed", checkoutCompletedPayload(userID, "BASIC"))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, string(entitlements.PlanBasic), sub.Plan)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 50, sub.MonthlyCredits)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, "price_basic", sub.StripePriceID)
}

func TestHandleWebhookEventIsIdempotent(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	periodStart := time.Now()
	e.gateway.subscriptions["sub_1"] = &SubscriptionInfo{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		PriceID:            "price_basic",
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodStart.AddDate(0, 1, 0),
	}

	event := makeEvent("evt_1", "checkout.session.completed", checkoutCompletedPayload(userID, "BASIC"))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	// Spend some credits, then replay the same event id
	require.NoError(t, e.repos.Subscription.UpdateFields(userID, map[string]interface{}{
		"credits_used": 7,
	}))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, 7, sub.CreditsUsed, "replay must not re-apply the activation")
}

func TestHandleWebhookEventRetriesAfterFailure(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	// The gateway does not know sub_1 yet, so activation fails transiently
	event := makeEvent("evt_1", "checkout.session.completed", checkoutCompletedPayload(userID, "BASIC"))
	require.Error(t, e.svc.HandleWebhookEvent(ctx, event))

	_, stored, err := e.repos.WebhookEvent.CreateIfNotExists(&models.WebhookEvent{StripeEventID: "evt_1"})
	require.NoError(t, err)
	assert.Nil(t, stored.ProcessedAt)
	assert.NotEmpty(t, stored.ProcessingError)

	// Stripe redelivers once the subscription is fetchable
	periodStart := time.Now()
	e.gateway.subscriptions["sub_1"] = &SubscriptionInfo{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		PriceID:            "price_basic",
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodStart.AddDate(0, 1, 0),
	}
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	_, stored, err = e.repos.WebhookEvent.CreateIfNotExists(&models.WebhookEvent{StripeEventID: "evt_1"})
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.ProcessingError)
}

func TestSubscriptionUpdatedMapsStatus(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	// Whole seconds so the event timestamps line up with the stored period
	periodStart := time.Now().Truncate(time.Second)
	periodEnd := periodStart.AddDate(0, 1, 0)
	userID := e.seedActiveBasic(t, periodEnd)

	event := makeEvent("evt_2", "customer.subscription.updated",
		subscriptionPayload(userID, "past_due", false, periodStart, periodEnd))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)

	event = makeEvent("evt_3", "customer.subscription.updated",
		subscriptionPayload(userID, "active", true, periodStart, periodEnd))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err = e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestSubscriptionUpdatedStaleEventSkipped(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	periodEnd := time.Now().AddDate(0, 1, 0)
	userID := e.seedActiveBasic(t, periodEnd)

	// Event from a previous billing period arrives late
	stalePeriodEnd := periodEnd.AddDate(0, -1, 0)
	event := makeEvent("evt_4", "customer.subscription.updated",
		subscriptionPayload(userID, "past_due", false, stalePeriodEnd.AddDate(0, -1, 0), stalePeriodEnd))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status, "stale event must not roll state back")
}

func TestSubscriptionUpdatedUnknownSubscriptionDropped(t *testing.T) {
	e := newBillingEnv(t)

	event := makeEvent("evt_5", "customer.subscription.updated",
		subscriptionPayload(4711, "active", false, time.Now(), time.Now().AddDate(0, 1, 0)))
	assert.NoError(t, e.svc.HandleWebhookEvent(context.Background(), event))
}

func TestSubscriptionDeletedExpires(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedActiveBasic(t, time.Now().AddDate(0, 1, 0))

	event := makeEvent("evt_6", "customer.subscription.deleted",
		subscriptionPayload(userID, "canceled", false, time.Now().AddDate(0, -1, 0), time.Now()))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, string(entitlements.PlanFree), sub.Plan)
	assert.Equal(t, models.SubscriptionStatusExpired, sub.Status)
	assert.Equal(t, 5, sub.MonthlyCredits)
	assert.Empty(t, sub.StripeSubscriptionID)
	assert.Nil(t, sub.CurrentPeriodEnd)
}

func TestInvoicePaymentSucceededRenewsOnlyOnCycle(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	periodEnd := time.Now().AddDate(0, 1, 0)
	userID := e.seedActiveBasic(t, periodEnd)

	newStart := periodEnd
	newEnd := periodEnd.AddDate(0, 1, 0)
	e.gateway.subscriptions["sub_1"] = &SubscriptionInfo{
		ID:                 "sub_1",
		CustomerID:         "cus_1",
		PriceID:            "price_basic",
		CurrentPeriodStart: newStart,
		CurrentPeriodEnd:   newEnd,
	}

	// The initial subscription invoice does not reset anything
	event := makeEvent("evt_7", "invoice.payment_succeeded", invoicePayload("subscription_create"))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))
	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, 30, sub.CreditsUsed)

	// A cycle invoice starts a fresh period with a full quota
	event = makeEvent("evt_8", "invoice.payment_succeeded", invoicePayload("subscription_cycle"))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))
	sub, err = e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.CreditsUsed)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, newEnd.Unix(), sub.CurrentPeriodEnd.Unix())
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedActiveBasic(t, time.Now().AddDate(0, 1, 0))

	event := makeEvent("evt_9", "invoice.payment_failed", invoicePayload("subscription_cycle"))
	require.NoError(t, e.svc.HandleWebhookEvent(ctx, event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, string(entitlements.PlanBasic), sub.Plan, "plan is untouched on payment failure")
}

func TestUnknownEventTypeIsAcknowledged(t *testing.T) {
	e := newBillingEnv(t)

	event := makeEvent("evt_10", "customer.created", `{"id": "cus_1"}`)
	require.NoError(t, e.svc.HandleWebhookEvent(context.Background(), event))

	created, stored, err := e.repos.WebhookEvent.CreateIfNotExists(&models.WebhookEvent{
		StripeEventID: "evt_10",
		EventType:     "customer.created",
	})
	require.NoError(t, err)
	assert.False(t, created, "event id must already be recorded")
	assert.NotNil(t, stored.ProcessedAt)
}

func TestCheckoutCompletedWithoutMetadataDropped(t *testing.T) {
	e := newBillingEnv(t)
	userID := e.seedUser(t, nil)

	event := makeEvent("evt_11", "checkout.session.completed",
		`{"id": "cs_1", "subscription": {"id": "sub_1"}, "metadata": {}}`)
	require.NoError(t, e.svc.HandleWebhookEvent(context.Background(), event))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrial, sub.Status, "uncorrelated checkout must not change state")
}
