package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	APIKey  string        `env:"STRIPE_API_KEY,required"`
	Timeout time.Duration `env:"STRIPE_TIMEOUT" envDefault:"15s"` // Timeout bounds every provider call.
}

// StripeProvider implements Provider using the official Stripe SDK.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a Stripe-backed billing provider. The HTTP
// client timeout enforces the provider call budget even when callers pass
// an unbounded context.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	backends := stripe.NewBackends(&http.Client{Timeout: cfg.Timeout})
	return &StripeProvider{api: client.New(cfg.APIKey, backends)}, nil
}

// RetrieveCheckoutSession fetches a checkout session with its subscription
// reference.
func (p *StripeProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("subscription")

	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, wrapStripeErr(err, ErrSessionNotFound)
	}

	out := &CheckoutSession{
		ID:       sess.ID,
		Status:   string(sess.Status),
		Metadata: sess.Metadata,
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.CustomerDetails != nil {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	return out, nil
}

// RetrieveSubscription fetches a subscription with its price and product
// expanded so plan limits can be read from product metadata.
func (p *StripeProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("items.data.price.product")

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr(err, ErrSubscriptionNotFound)
	}

	out := &Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		out.TrialEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		price := sub.Items.Data[0].Price
		if price != nil {
			out.PriceID = price.ID
			if price.Product != nil {
				out.ProductID = price.Product.ID
				out.ProductMetadata = price.Product.Metadata
			}
		}
	}
	return out, nil
}

// UpdateSubscriptionMetadata merges fields into the subscription's
// metadata on the provider side.
func (p *StripeProvider) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, fields map[string]string) error {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx, Metadata: fields}}
	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return wrapStripeErr(err, ErrSubscriptionNotFound)
	}
	return nil
}

// wrapStripeErr maps SDK errors onto the package's sentinel taxonomy while
// preserving the original for logs.
func wrapStripeErr(err error, notFound error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return errors.Join(notFound, err)
		}
		return errors.Join(ErrProviderUnavailable, fmt.Errorf("stripe: %s", stripeErr.Msg))
	}
	return errors.Join(ErrProviderUnavailable, err)
}
