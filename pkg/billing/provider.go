package billing

import "context"

// Provider is the narrow contract against the payment provider. The
// provider is authoritative: completion always re-fetches the session and
// subscription instead of trusting anything the browser sent.
//
// Implementations exist for Stripe and Paddle; the rest of the system
// never imports a provider SDK directly.
type Provider interface {
	// RetrieveCheckoutSession fetches and normalizes a checkout session.
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// RetrieveSubscription fetches the subscription linked to a completed
	// checkout, including the product metadata that carries plan limits.
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// UpdateSubscriptionMetadata writes fields into the provider-side
	// subscription record, linking the tenant back into the billing
	// source of truth.
	UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, fields map[string]string) error
}

// Config selects and configures the billing provider implementation.
type Config struct {
	Provider string `env:"BILLING_PROVIDER" envDefault:"stripe"` // Provider is stripe or paddle.
}
