// Package stripehttp exposes the Stripe app layer over HTTP.
package stripehttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tbeaudouin05/stripe-entitlements/api/auth"
	"github.com/tbeaudouin05/stripe-entitlements/api/notify"
	stripeapp "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/app"
)

const (
	webhookBodyLimit = 1024 * 1024 // 1 MiB
	jsonBodyLimit    = 64 * 1024
)

// Handler serves the checkout, webhook and entitlement endpoints.
type Handler struct {
	svc           stripeapp.Service
	verifier      *auth.Verifier
	hub           *notify.Hub
	webhookSecret string
	portalURL     string
}

// Options carries the collaborators of a Handler.
type Options struct {
	Service       stripeapp.Service
	Verifier      *auth.Verifier
	Hub           *notify.Hub
	WebhookSecret string
	// CustomerPortalURL is returned next to the entitlement when set.
	CustomerPortalURL string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		svc:           opts.Service,
		verifier:      opts.Verifier,
		hub:           opts.Hub,
		webhookSecret: opts.WebhookSecret,
		portalURL:     opts.CustomerPortalURL,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps app errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, stripeapp.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, stripeapp.ErrInvalidSignature),
		errors.Is(err, stripeapp.ErrBadRequest),
		errors.Is(err, stripeapp.ErrUnknownPlan),
		errors.Is(err, stripeapp.ErrUnknownUser),
		errors.Is(err, stripeapp.ErrBadEvent):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusUnauthorized:
		msg = "Unauthorized"
	case http.StatusInternalServerError:
		log.Error().Err(err).Msg("request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// WriteJSONError writes the error body used by every JSON endpoint.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("encode response")
	}
}
