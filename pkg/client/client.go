package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API paths, relative to the session's base URL.
const (
	PathCheckoutSessions  = "/api/checkout-sessions"
	PathEntitlementMe     = "/api/entitlements/me"
	PathEntitlementStream = "/api/entitlements/stream"
)

// Entitlement mirrors the server's user_entitlements row.
type Entitlement struct {
	ID                 string     `json:"id"`
	SubscriptionID     *string    `json:"subscription_id"`
	StripeCustomerID   *string    `json:"stripe_customer_id"`
	PriceID            *string    `json:"price_id"`
	ProductID          *string    `json:"product_id"`
	SubscriptionStatus *string    `json:"subscription_status"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
}

// Status returns the subscription status, "none" when unset.
func (e Entitlement) Status() string {
	if e.SubscriptionStatus == nil || *e.SubscriptionStatus == "" {
		return "none"
	}
	return *e.SubscriptionStatus
}

// IsActive gates paid features.
func (e Entitlement) IsActive() bool {
	if e.SubscriptionID == nil {
		return false
	}
	s := e.Status()
	return s == "active" || s == "trialing"
}

// Me is the point-read response.
type Me struct {
	Entitlement       Entitlement `json:"entitlement"`
	CustomerPortalURL string      `json:"customer_portal_url"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Client calls the entitlement API on behalf of a Session.
type Client struct {
	session   *Session
	http      *http.Client
	callbacks Callbacks
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithCallbacks overrides the checkout callback base.
func WithCallbacks(cb Callbacks) Option { return func(c *Client) { c.callbacks = cb } }

func New(session *Session, opts ...Option) *Client {
	c := &Client{session: session, http: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns the session the client acts for.
func (c *Client) Session() *Session { return c.session }

// Callbacks returns the callback URLs sent with checkout requests.
func (c *Client) Callbacks() Callbacks { return c.callbacks }

// CreateCheckoutSession returns the hosted checkout URL for priceID.
func (c *Client) CreateCheckoutSession(ctx context.Context, priceID string) (string, error) {
	body := map[string]string{
		"price_id":      priceID,
		"success_url":   c.callbacks.SuccessURL(),
		"cancelled_url": c.callbacks.CancelledURL(),
	}
	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, PathCheckoutSessions, body, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("checkout session %q has no url", resp.ID)
	}
	return resp.URL, nil
}

// Me reads the caller's entitlement and billing portal link.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	err := c.do(ctx, http.MethodGet, PathEntitlementMe, nil, &me)
	return me, err
}

// Entitlement is the authoritative point read.
func (c *Client) Entitlement(ctx context.Context) (Entitlement, error) {
	me, err := c.Me(ctx)
	return me.Entitlement, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.session.Token()
	if err != nil {
		return err
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.session.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
