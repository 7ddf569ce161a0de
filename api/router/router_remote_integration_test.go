package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	config "github.com/tbeaudouin05/stripe-entitlements/api/config"
)

// Remote HTTP integration tests against a deployed instance at INTEGRATION_BASE_URL.

func remoteBaseURL(t *testing.T) string {
	t.Helper()
	ensureConfig(t)
	if config.AppConfig.IntegrationBaseURL == "" {
		t.Skip("INTEGRATION_BASE_URL not set")
	}
	return config.AppConfig.IntegrationBaseURL
}

func TestCheckoutSessionHTTP_Remote_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}
	base := remoteBaseURL(t)

	payload := map[string]any{"price_id": ""}
	b, _ := json.Marshal(payload)
	resp, err := http.Post(base+PathCheckoutSessions, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session token, got %d", resp.StatusCode)
	}
}

func TestStripeWebhookHTTP_Remote_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}
	base := remoteBaseURL(t)

	req, _ := http.NewRequest(http.MethodPost, base+PathStripeWebhook, bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	// Intentionally omit Stripe-Signature header to get an error response
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 when missing Stripe-Signature, got %d", resp.StatusCode)
	}
}
