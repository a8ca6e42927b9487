package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider on top of the Paddle SDK. Paddle has
// no separate checkout-session object; a transaction created with the
// onboarding custom data plays that role, and "completed" maps to the
// contract's "complete".
type PaddleProvider struct {
	client *paddle.SDK
}

// NewPaddleProvider creates a Paddle-backed billing provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	return &PaddleProvider{client: client}, nil
}

// RetrieveCheckoutSession fetches the transaction standing in for a
// checkout session.
func (p *PaddleProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	txn, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: sessionID,
	})
	if err != nil {
		return nil, errors.Join(ErrSessionNotFound, err)
	}

	status := string(txn.Status)
	if status == "completed" {
		status = "complete"
	}

	out := &CheckoutSession{
		ID:       txn.ID,
		Status:   status,
		Metadata: customDataToStrings(txn.CustomData),
	}
	if txn.SubscriptionID != nil {
		out.SubscriptionID = *txn.SubscriptionID
	}
	if txn.CustomerID != nil {
		out.CustomerID = *txn.CustomerID
	}
	return out, nil
}

// RetrieveSubscription fetches a Paddle subscription; plan limits are read
// from the price's custom data.
func (p *PaddleProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return nil, errors.Join(ErrSubscriptionNotFound, err)
	}

	out := &Subscription{
		ID:         sub.ID,
		Status:     string(sub.Status),
		CustomerID: sub.CustomerID,
	}

	if len(sub.Items) > 0 {
		item := sub.Items[0]
		if item.Price.ID != "" {
			out.PriceID = item.Price.ID
			out.ProductID = item.Price.ProductID
			out.ProductMetadata = customDataToStrings(item.Price.CustomData)
		}
		if item.TrialDates != nil && item.TrialDates.EndsAt != "" {
			if t, err := time.Parse(time.RFC3339, item.TrialDates.EndsAt); err == nil {
				utc := t.UTC()
				out.TrialEnd = &utc
			}
		}
	}

	return out, nil
}

// UpdateSubscriptionMetadata merges fields into the subscription's custom
// data. Paddle replaces custom data wholesale, so existing entries are
// carried over.
func (p *PaddleProvider) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, fields map[string]string) error {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return errors.Join(ErrSubscriptionNotFound, err)
	}

	merged := paddle.CustomData{}
	for k, v := range sub.CustomData {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	_, err = p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID: subscriptionID,
		CustomData:     paddle.NewPatchField(merged),
	})
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	return nil
}

// customDataToStrings keeps only string-valued custom data entries, which
// is all the onboarding metadata contract uses.
func customDataToStrings(data paddle.CustomData) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
