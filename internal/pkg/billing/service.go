package billing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/coachai-app/coachai/app/models"
	"github.com/coachai-app/coachai/app/repository"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
	"github.com/coachai-app/coachai/internal/pkg/env"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNoStripeCustomer     = errors.New("no billing customer on record")
	ErrNoStripeSubscription = errors.New("no billing subscription on record")
	ErrPlanNotPurchasable   = errors.New("plan is not purchasable")
	ErrPriceNotConfigured   = errors.New("no price configured for plan")
	ErrBillingPeriodOver    = errors.New("billing period already ended")
	ErrNotCanceled          = errors.New("subscription is not canceled")
)

// trialDays is forwarded to checkout so paid upgrades also start with a
// short trial, matching the signup trial window.
const trialDays = 3

// ActivationData carries the provider identifiers stored on activation.
type ActivationData struct {
	CustomerID     string
	SubscriptionID string
	PriceID        string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Service owns the subscription state machine and its synchronization with
// the payment provider, both for user-initiated actions and for inbound
// webhook events.
type Service struct {
	subs    repository.SubscriptionRepository
	users   repository.UserRepository
	events  repository.WebhookEventRepository
	gateway Gateway
	prices  map[entitlements.Plan]string
	now     func() time.Time
}

// NewService creates a billing service from injected collaborators. Price
// ids default to the STRIPE_PRICE_BASIC / STRIPE_PRICE_PREMIUM environment.
func NewService(
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	events repository.WebhookEventRepository,
	gateway Gateway,
) *Service {
	return &Service{
		subs:    subs,
		users:   users,
		events:  events,
		gateway: gateway,
		prices: map[entitlements.Plan]string{
			entitlements.PlanBasic:   env.GetEnv("STRIPE_PRICE_BASIC", ""),
			entitlements.PlanPremium: env.GetEnv("STRIPE_PRICE_PREMIUM", ""),
		},
		now: time.Now,
	}
}

// WithPrices overrides the plan-to-price mapping (tests, multi-env setups).
func (s *Service) WithPrices(prices map[entitlements.Plan]string) *Service {
	s.prices = prices
	return s
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetByUserID returns the user's subscription, applying the lazy trial
// expiry check first: expiry is pull-based, evaluated on read, never by a
// scheduled job.
func (s *Service) GetByUserID(ctx context.Context, userID uint) (*models.Subscription, error) {
	if _, err := s.CheckTrialExpiration(ctx, userID); err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	sub, err := s.subs.GetByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// CheckTrialExpiration flips TRIAL to EXPIRED once the trial window has
// passed. It reports whether the flip happened.
func (s *Service) CheckTrialExpiration(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrSubscriptionNotFound
		}
		return false, err
	}
	if !sub.IsTrialExpired(s.now()) {
		return false, nil
	}
	return true, s.subs.UpdateFields(userID, map[string]interface{}{
		"status": models.SubscriptionStatusExpired,
	})
}

// RemainingCredits returns the unlimited sentinel for PREMIUM, otherwise
// quota minus consumption (not clamped; the conditional consume keeps it
// from going negative in practice).
func (s *Service) RemainingCredits(ctx context.Context, userID uint) (int, error) {
	_ = ctx
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSubscriptionNotFound
		}
		return 0, err
	}
	if entitlements.Plan(sub.Plan) == entitlements.PlanPremium {
		return entitlements.UnlimitedCredits, nil
	}
	return sub.RemainingCredits(), nil
}

// Activate applies a successful checkout: purchased tier, ACTIVE status,
// fresh credit quota, stored provider identifiers and period bounds.
func (s *Service) Activate(ctx context.Context, userID uint, plan entitlements.Plan, data ActivationData) error {
	_ = ctx
	if !entitlements.IsPaid(plan) {
		return ErrPlanNotPurchasable
	}
	return s.subs.UpdateFields(userID, map[string]interface{}{
		"plan":                   string(plan),
		"status":                 models.SubscriptionStatusActive,
		"monthly_credits":        entitlements.MonthlyCredits(plan),
		"credits_used":           0,
		"cancel_at_period_end":   false,
		"stripe_customer_id":     data.CustomerID,
		"stripe_subscription_id": data.SubscriptionID,
		"stripe_price_id":        data.PriceID,
		"current_period_start":   data.PeriodStart,
		"current_period_end":     data.PeriodEnd,
	})
}

// Cancel soft-cancels: access continues until period end.
func (s *Service) Cancel(ctx context.Context, userID uint) error {
	_ = ctx
	return s.subs.UpdateFields(userID, map[string]interface{}{
		"status":               models.SubscriptionStatusCanceled,
		"cancel_at_period_end": true,
	})
}

// Reactivate undoes a soft-cancel before the period runs out.
func (s *Service) Reactivate(ctx context.Context, userID uint) error {
	_ = ctx
	return s.subs.UpdateFields(userID, map[string]interface{}{
		"status":               models.SubscriptionStatusActive,
		"cancel_at_period_end": false,
	})
}

// Renew starts a new billing cycle: credits reset, fresh period bounds.
func (s *Service) Renew(ctx context.Context, userID uint, periodStart, periodEnd time.Time) error {
	_ = ctx
	return s.subs.UpdateFields(userID, map[string]interface{}{
		"status":               models.SubscriptionStatusActive,
		"credits_used":         0,
		"current_period_start": periodStart,
		"current_period_end":   periodEnd,
		"cancel_at_period_end": false,
	})
}

// Expire reverts a fully terminated subscription to the FREE tier and
// clears every provider identifier and period bound.
func (s *Service) Expire(ctx context.Context, userID uint) error {
	_ = ctx
	return s.subs.UpdateFields(userID, map[string]interface{}{
		"plan":                   string(entitlements.PlanFree),
		"status":                 models.SubscriptionStatusExpired,
		"monthly_credits":        entitlements.MonthlyCredits(entitlements.PlanFree),
		"credits_used":           0,
		"stripe_subscription_id": "",
		"stripe_price_id":        "",
		"current_period_start":   nil,
		"current_period_end":     nil,
		"cancel_at_period_end":   false,
	})
}

// MarkPastDue records a failed payment without touching plan or credits.
func (s *Service) MarkPastDue(ctx context.Context, userID uint) error {
	_ = ctx
	return s.subs.UpdateFields(userID, map[string]interface{}{
		"status": models.SubscriptionStatusPastDue,
	})
}

// GetOrCreateCustomer returns the stored provider customer id, creating and
// persisting one on first use. Idempotent.
func (s *Service) GetOrCreateCustomer(ctx context.Context, userID uint) (string, error) {
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSubscriptionNotFound
		}
		return "", err
	}
	if sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, user.Name, map[string]string{
		"userId": strconv.FormatUint(uint64(userID), 10),
	})
	if err != nil {
		return "", err
	}
	if err := s.subs.UpdateFields(userID, map[string]interface{}{
		"stripe_customer_id": customerID,
	}); err != nil {
		return "", err
	}
	return customerID, nil
}

// CreateCheckoutSession starts a subscription-mode checkout for a paid plan
// and returns the hosted checkout URL. The {userId, plan} metadata on both
// session and subscription is what the webhook uses for correlation.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, plan entitlements.Plan, successURL, cancelURL string) (string, error) {
	if !entitlements.IsPaid(plan) {
		return "", ErrPlanNotPurchasable
	}
	priceID := s.prices[plan]
	if priceID == "" {
		return "", ErrPriceNotConfigured
	}

	customerID, err := s.GetOrCreateCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	return s.gateway.CreateCheckoutSession(ctx, CheckoutInput{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		TrialDays:  trialDays,
		Metadata: map[string]string{
			"userId": strconv.FormatUint(uint64(userID), 10),
			"plan":   string(plan),
		},
	})
}

// CreatePortalSession opens the provider's self-service billing portal.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint, returnURL string) (string, error) {
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSubscriptionNotFound
		}
		return "", err
	}
	if sub.StripeCustomerID == "" {
		return "", ErrNoStripeCustomer
	}
	return s.gateway.CreatePortalSession(ctx, sub.StripeCustomerID, returnURL)
}

// CancelSubscription flags cancel-at-period-end upstream, then mirrors the
// soft-cancel locally.
func (s *Service) CancelSubscription(ctx context.Context, userID uint) error {
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}
	if sub.StripeSubscriptionID == "" {
		return ErrNoStripeSubscription
	}
	if err := s.gateway.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, true); err != nil {
		return err
	}
	return s.Cancel(ctx, userID)
}

// ReactivateSubscription clears the upstream cancel flag and restores the
// local status. Only valid while the canceled period is still running.
func (s *Service) ReactivateSubscription(ctx context.Context, userID uint) error {
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}
	if sub.StripeSubscriptionID == "" {
		return ErrNoStripeSubscription
	}
	if !sub.CancelAtPeriodEnd {
		return ErrNotCanceled
	}
	if sub.CurrentPeriodEnd != nil && s.now().After(*sub.CurrentPeriodEnd) {
		return ErrBillingPeriodOver
	}
	if err := s.gateway.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, false); err != nil {
		return err
	}
	return s.Reactivate(ctx, userID)
}

func logWithUser(userID uint) *log.Entry {
	return log.WithField("user_id", userID)
}
