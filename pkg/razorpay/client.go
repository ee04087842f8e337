// Package razorpay is a small client for the Razorpay orders and refunds API.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.razorpay.com/v1"

type Client struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type Refund struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

// APIError is an error response from the gateway.
type APIError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
	Field       string `json:"field"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return fmt.Sprintf("razorpay returned status %d", e.StatusCode)
}

func NewClient(baseURL, keyID, keySecret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateOrder creates a remote order for amount minor units.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	payload := CreateOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	}

	var order Order
	raw, err := c.post(ctx, "/orders", payload, &order)
	if err != nil {
		return nil, err
	}
	order.Raw = raw
	return &order, nil
}

// Refund refunds amount minor units of a captured payment.
func (c *Client) Refund(ctx context.Context, paymentID string, amount int64) (*Refund, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("payment id is required")
	}

	var refund Refund
	raw, err := c.post(ctx, "/payments/"+url.PathEscape(paymentID)+"/refund", refundRequest{Amount: amount}, &refund)
	if err != nil {
		return nil, err
	}
	refund.Raw = raw
	return &refund, nil
}

func (c *Client) post(ctx context.Context, path string, payload, dest interface{}) (json.RawMessage, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
			apiErr.Field = envelope.Error.Field
		}
		return nil, apiErr
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return json.RawMessage(body), nil
}
