package stripehttp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/tbeaudouin05/stripe-entitlements/api/metrics"
	stripeapp "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/app"
)

// Webhook verifies the Stripe signature over the raw body, then reconciles
// the event. Responses carry no body; Stripe redelivers on 5xx.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequests.WithLabelValues(metrics.Label(eventType), strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(metrics.Label(eventType)).Observe(time.Since(start).Seconds())
		w.WriteHeader(status)
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		status = http.StatusUnauthorized
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		return
	}

	event, err := h.verifyEvent(payload, sigHeader)
	if err != nil {
		log.Warn().Err(err).Msg("webhook signature verification failed")
		status = statusFor(err)
		return
	}
	eventType = string(event.Type)

	if err := h.svc.HandleEvent(r.Context(), event); err != nil {
		status = statusFor(err)
		ev := log.Error()
		if errors.Is(err, stripeapp.ErrBadEvent) {
			ev = log.Warn()
		}
		ev.Err(err).Str("event_id", event.ID).Str("event_type", eventType).Int("status", status).Msg("webhook processing failed")
		return
	}
	log.Debug().Str("event_id", event.ID).Str("event_type", eventType).Msg("webhook acknowledged")
}

// verifyEvent checks sigHeader against the raw payload before anything in it
// is trusted.
func (h *Handler) verifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", stripeapp.ErrInvalidSignature, err)
	}
	return event, nil
}
