package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Intent statuses reported by the payment provider.
const (
	IntentSucceeded            = "succeeded"
	IntentProcessing           = "processing"
	IntentRequiresPayment      = "requires_payment_method"
	IntentRequiresConfirmation = "requires_confirmation"
	IntentRequiresAction       = "requires_action"
	IntentCanceled             = "canceled"
)

type Card struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type IntentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Intent is the provider's payment intent resource, reduced to the fields the
// reconciliation path consumes.
type Intent struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	ClientSecret       string            `json:"client_secret"`
	LatestCharge       string            `json:"latest_charge"`
	PaymentMethod      string            `json:"payment_method"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Metadata           map[string]string `json:"metadata"`
	LastError          *IntentError      `json:"last_payment_error"`
	CancellationReason string            `json:"cancellation_reason"`
	Card               *Card             `json:"card"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// Error is a typed provider API error.
type Error struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s (%s)", e.Message, e.Code)
}

type CreateIntentParams struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Confirm       bool              `json:"confirm,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type CreateRefundParams struct {
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Client is the surface of the payment provider that the service consumes.
type Client interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	ConfirmIntent(ctx context.Context, id string) (*Intent, error)
	CreateRefund(ctx context.Context, params CreateRefundParams) (*Refund, error)
}

// HTTPClient implements Client against the provider's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *HTTPClient) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	var intent Intent
	if err := c.call(ctx, http.MethodPost, "/v1/payment_intents", params, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	var intent Intent
	if err := c.call(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) ConfirmIntent(ctx context.Context, id string) (*Intent, error) {
	var intent Intent
	if err := c.call(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(id)+"/confirm", nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) CreateRefund(ctx context.Context, params CreateRefundParams) (*Refund, error) {
	var refund Refund
	if err := c.call(ctx, http.MethodPost, "/v1/refunds", params, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *HTTPClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error *Error `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wrapper); err == nil && wrapper.Error != nil {
			return wrapper.Error
		}
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
