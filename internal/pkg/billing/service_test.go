package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/coachai-app/coachai/app/models"
	"github.com/coachai-app/coachai/app/repository"
	"github.com/coachai-app/coachai/internal/pkg/database"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
)

type cancelCall struct {
	subscriptionID string
	cancel         bool
}

// fakeGateway records outbound provider calls and serves canned state.
type fakeGateway struct {
	customersCreated int
	lastCheckout     CheckoutInput
	cancelCalls      []cancelCall
	subscriptions    map[string]*SubscriptionInfo
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{subscriptions: map[string]*SubscriptionInfo{}}
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	g.customersCreated++
	return fmt.Sprintf("cus_fake_%d", g.customersCreated), nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	g.lastCheckout = in
	return "https://checkout.example/session", nil
}

func (g *fakeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.example/portal/" + customerID, nil
}

func (g *fakeGateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	g.cancelCalls = append(g.cancelCalls, cancelCall{subscriptionID: subscriptionID, cancel: cancel})
	return nil
}

func (g *fakeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	info, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return info, nil
}

func (g *fakeGateway) ConstructWebhookEvent(payload []byte, signatureHeader string) (*stripe.Event, error) {
	return nil, errors.New("not supported by fake")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type billingEnv struct {
	svc     *Service
	repos   *repository.Repositories
	gateway *fakeGateway
}

func newBillingEnv(t *testing.T) *billingEnv {
	t.Helper()
	repos := repository.NewRepositories(newTestDB(t))
	gateway := newFakeGateway()
	svc := NewService(repos.Subscription, repos.User, repos.WebhookEvent, gateway).
		WithPrices(map[entitlements.Plan]string{
			entitlements.PlanBasic:   "price_basic",
			entitlements.PlanPremium: "price_premium",
		})
	return &billingEnv{svc: svc, repos: repos, gateway: gateway}
}

// seedUser inserts a user with a trial subscription and returns the user id.
func (e *billingEnv) seedUser(t *testing.T, mutate func(*models.Subscription)) uint {
	t.Helper()
	user := &models.User{Email: "dana@example.com", Name: "Dana", ChatCredits: 5}
	trialStart := time.Now()
	trialEnd := trialStart.Add(entitlements.TrialDuration)
	sub := &models.Subscription{
		Plan:           string(entitlements.PlanFree),
		Status:         models.SubscriptionStatusTrial,
		MonthlyCredits: 5,
		TrialStartDate: &trialStart,
		TrialEndDate:   &trialEnd,
	}
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, e.repos.User.CreateWithSubscription(user, sub))
	return user.ID
}

func TestCheckTrialExpiration(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	flipped, err := e.svc.CheckTrialExpiration(ctx, userID)
	require.NoError(t, err)
	assert.False(t, flipped)

	e.svc.WithClock(func() time.Time { return time.Now().Add(entitlements.TrialDuration + time.Hour) })
	sub, err := e.svc.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusExpired, sub.Status)
}

func TestActivate(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	periodStart := time.Now()
	periodEnd := periodStart.AddDate(0, 1, 0)
	require.NoError(t, e.svc.Activate(ctx, userID, entitlements.PlanBasic, ActivationData{
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PriceID:        "price_basic",
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
	}))

	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, string(entitlements.PlanBasic), sub.Plan)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 50, sub.MonthlyCredits)
	assert.Equal(t, 0, sub.CreditsUsed)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, periodEnd.Unix(), sub.CurrentPeriodEnd.Unix())

	err = e.svc.Activate(ctx, userID, entitlements.PlanFree, ActivationData{})
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
}

func TestCreateCheckoutSession(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	url, err := e.svc.CreateCheckoutSession(ctx, userID, entitlements.PlanBasic, "https://app/success", "https://app/cancel")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/session", url)

	// Correlation metadata must round-trip through the checkout session
	assert.Equal(t, fmt.Sprint(userID), e.gateway.lastCheckout.Metadata["userId"])
	assert.Equal(t, string(entitlements.PlanBasic), e.gateway.lastCheckout.Metadata["plan"])
	assert.Equal(t, "price_basic", e.gateway.lastCheckout.PriceID)
	assert.EqualValues(t, 3, e.gateway.lastCheckout.TrialDays)

	_, err = e.svc.CreateCheckoutSession(ctx, userID, entitlements.PlanFree, "s", "c")
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)

	e.svc.WithPrices(map[entitlements.Plan]string{})
	_, err = e.svc.CreateCheckoutSession(ctx, userID, entitlements.PlanBasic, "s", "c")
	assert.ErrorIs(t, err, ErrPriceNotConfigured)
}

func TestGetOrCreateCustomerIsIdempotent(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	first, err := e.svc.GetOrCreateCustomer(ctx, userID)
	require.NoError(t, err)
	second, err := e.svc.GetOrCreateCustomer(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, e.gateway.customersCreated)
}

func TestCancelAndReactivate(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	periodEnd := time.Now().AddDate(0, 1, 0)
	userID := e.seedUser(t, func(sub *models.Subscription) {
		sub.Plan = string(entitlements.PlanBasic)
		sub.Status = models.SubscriptionStatusActive
		sub.MonthlyCredits = 50
		sub.StripeCustomerID = "cus_1"
		sub.StripeSubscriptionID = "sub_1"
		sub.CurrentPeriodEnd = &periodEnd
	})

	require.NoError(t, e.svc.CancelSubscription(ctx, userID))
	sub, err := e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.Len(t, e.gateway.cancelCalls, 1)
	assert.Equal(t, cancelCall{subscriptionID: "sub_1", cancel: true}, e.gateway.cancelCalls[0])

	require.NoError(t, e.svc.ReactivateSubscription(ctx, userID))
	sub, err = e.repos.Subscription.GetByUserID(userID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	require.Len(t, e.gateway.cancelCalls, 2)
	assert.Equal(t, cancelCall{subscriptionID: "sub_1", cancel: false}, e.gateway.cancelCalls[1])

	// Not canceled anymore, so a second reactivation is rejected
	assert.ErrorIs(t, e.svc.ReactivateSubscription(ctx, userID), ErrNotCanceled)
}

func TestReactivateAfterPeriodEnd(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	periodEnd := time.Now().Add(-time.Hour)
	userID := e.seedUser(t, func(sub *models.Subscription) {
		sub.Status = models.SubscriptionStatusCanceled
		sub.CancelAtPeriodEnd = true
		sub.StripeSubscriptionID = "sub_1"
		sub.CurrentPeriodEnd = &periodEnd
	})

	assert.ErrorIs(t, e.svc.ReactivateSubscription(ctx, userID), ErrBillingPeriodOver)
}

func TestCancelRequiresStripeSubscription(t *testing.T) {
	e := newBillingEnv(t)
	userID := e.seedUser(t, nil)

	assert.ErrorIs(t, e.svc.CancelSubscription(context.Background(), userID), ErrNoStripeSubscription)
}

func TestCreatePortalSessionRequiresCustomer(t *testing.T) {
	e := newBillingEnv(t)
	ctx := context.Background()
	userID := e.seedUser(t, nil)

	_, err := e.svc.CreatePortalSession(ctx, userID, "https://app/account")
	assert.ErrorIs(t, err, ErrNoStripeCustomer)

	require.NoError(t, e.repos.Subscription.UpdateFields(userID, map[string]interface{}{
		"stripe_customer_id": "cus_1",
	}))
	url, err := e.svc.CreatePortalSession(ctx, userID, "https://app/account")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example/portal/cus_1", url)
}
