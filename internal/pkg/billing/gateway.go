package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
)

// SubscriptionInfo is the provider-side subscription state the service needs
// to mirror locally.
type SubscriptionInfo struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Metadata           map[string]string
}

// CheckoutInput carries everything needed to start a subscription checkout.
type CheckoutInput struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	TrialDays  int64
	Metadata   map[string]string
}

// Gateway abstracts the outbound payment-provider API so the service can be
// exercised against a fake in tests.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error)
	ConstructWebhookEvent(payload []byte, signatureHeader string) (*stripe.Event, error)
}
