package app

import (
	"errors"

	"github.com/tbeaudouin05/stripe-entitlements/api/auth"
)

// Typed errors for the Stripe app layer. These enable HTTP mapping without
// relying on SDK-specific error types at the transport layer.
var (
	// ErrUnauthenticated indicates the caller has no valid session.
	ErrUnauthenticated = auth.ErrUnauthenticated
	// ErrInvalidSignature indicates a webhook whose signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrBadRequest indicates a caller-supplied value is missing or malformed.
	ErrBadRequest = errors.New("bad request")
	// ErrUnknownPlan indicates a price id outside the configured catalog.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrUnknownUser indicates the caller has no entitlement row.
	ErrUnknownUser = errors.New("unknown user")

	// ErrBadEvent indicates the incoming event payload is invalid or missing required fields.
	ErrBadEvent = errors.New("bad event")
	// ErrDatabase indicates a database-related failure.
	ErrDatabase = errors.New("database error")
	// ErrGateway indicates a failure from the Stripe gateway / API calls.
	ErrGateway = errors.New("gateway error")
)
