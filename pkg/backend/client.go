package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrymomot/costkit/pkg/billing"
)

// Config holds configuration for the internal provisioning backend.
type Config struct {
	BaseURL string        `env:"BACKEND_BASE_URL,required"`        // BaseURL of the data-processing backend API.
	APIKey  string        `env:"BACKEND_API_KEY,required"`         // APIKey for service-to-service auth.
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"30s"` // Timeout is the per-request budget.
}

// Provisioner is the contract the orchestrator and the sync queue drive.
// Both operations are idempotent on the backend side, keyed by org slug,
// so at-least-once delivery from the queue sweep is safe.
type Provisioner interface {
	// Onboard creates the organization in the backend. Safe to call again
	// for the same slug after a failure.
	Onboard(ctx context.Context, req OnboardRequest) (*OnboardResult, error)

	// SyncBillingState pushes a billing-state change into the backend.
	SyncBillingState(ctx context.Context, orgSlug string, state BillingState) error
}

// OnboardRequest carries everything the backend needs to provision an org.
type OnboardRequest struct {
	OrgSlug     string         `json:"org_slug"`
	DisplayName string         `json:"display_name"`
	AdminEmail  string         `json:"admin_email"`
	PlanID      string         `json:"plan_id"`
	Locale      billing.Locale `json:"locale"`
}

// OnboardResult is the backend's provisioning response. The reveal token
// is a one-time credential the dashboard hands to the new admin.
type OnboardResult struct {
	Success     bool   `json:"success"`
	RevealToken string `json:"reveal_token,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BillingState is the delta the sync queue reconciles into the backend.
type BillingState struct {
	Status      billing.BackendStatus `json:"status"`
	PlanID      string                `json:"plan_id"`
	TrialEndsAt *time.Time            `json:"trial_ends_at,omitempty"`
	Seats       int                   `json:"max_seats"`
	Providers   int                   `json:"max_providers"`
	Throughput  int                   `json:"max_throughput"`
}

// Client is the HTTP implementation of Provisioner.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a backend client from config.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) Onboard(ctx context.Context, req OnboardRequest) (*OnboardResult, error) {
	var result OnboardResult
	if err := c.post(ctx, "/v1/orgs", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, &Error{StatusCode: http.StatusUnprocessableEntity, Message: result.Error}
	}
	return &result, nil
}

func (c *Client) SyncBillingState(ctx context.Context, orgSlug string, state BillingState) error {
	path := fmt.Sprintf("/v1/orgs/%s/billing", orgSlug)
	return c.post(ctx, path, state, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are transport errors, classified
		// retryable by IsRetryable.
		return errors.Join(ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Join(ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("backend: decode response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the backend's error field, falling back to the raw
// body so operators always see something actionable in the queue entry.
func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	msg := string(raw)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
