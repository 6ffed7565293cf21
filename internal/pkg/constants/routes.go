package constants

// Static route constants
const (
	PublicRoute = "/"

	AuthRoute         = "/auth/:provider"
	AuthCallbackRoute = "/auth/:provider/callback"
	LogoutRoute       = "/logout"

	StripeWebhookRoute = "/webhooks/stripe"
)
