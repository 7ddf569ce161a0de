package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tbeaudouin05/stripe-entitlements/api/database"
)

// ErrNotFound is returned when no user_entitlements row matches a lookup.
var ErrNotFound = errors.New("entitlement not found")

// TimestampLayout is the wire form of period bounds: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// StatusNone is reported for rows without a subscription status.
const StatusNone = "none"

// Entitlement is the single per-user subscription record. A nil pointer is a
// NULL column; SubscriptionID == nil implies every plan field is nil as well.
type Entitlement struct {
	ID                 string
	SubscriptionID     *string
	StripeCustomerID   *string
	PriceID            *string
	ProductID          *string
	SubscriptionStatus *string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}

// Status returns the provider status, or StatusNone when unset.
func (e Entitlement) Status() string {
	if e.SubscriptionStatus == nil || *e.SubscriptionStatus == "" {
		return StatusNone
	}
	return *e.SubscriptionStatus
}

// IsActive reports whether the record grants paid features.
func (e Entitlement) IsActive() bool {
	if e.SubscriptionID == nil {
		return false
	}
	switch e.Status() {
	case "active", "trialing":
		return true
	}
	return false
}

type entitlementJSON struct {
	ID                 string  `json:"id"`
	SubscriptionID     *string `json:"subscription_id"`
	StripeCustomerID   *string `json:"stripe_customer_id"`
	PriceID            *string `json:"price_id"`
	ProductID          *string `json:"product_id"`
	SubscriptionStatus *string `json:"subscription_status"`
	CurrentPeriodStart *string `json:"current_period_start"`
	CurrentPeriodEnd   *string `json:"current_period_end"`
}

// MarshalJSON renders the row with its storage column names.
func (e Entitlement) MarshalJSON() ([]byte, error) {
	return json.Marshal(entitlementJSON{
		ID:                 e.ID,
		SubscriptionID:     e.SubscriptionID,
		StripeCustomerID:   e.StripeCustomerID,
		PriceID:            e.PriceID,
		ProductID:          e.ProductID,
		SubscriptionStatus: e.SubscriptionStatus,
		CurrentPeriodStart: formatTimePtr(e.CurrentPeriodStart),
		CurrentPeriodEnd:   formatTimePtr(e.CurrentPeriodEnd),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Entitlement) UnmarshalJSON(b []byte) error {
	var w entitlementJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	start, err := parseTimePtr(w.CurrentPeriodStart)
	if err != nil {
		return fmt.Errorf("current_period_start: %w", err)
	}
	end, err := parseTimePtr(w.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("current_period_end: %w", err)
	}
	*e = Entitlement{
		ID:                 w.ID,
		SubscriptionID:     w.SubscriptionID,
		StripeCustomerID:   w.StripeCustomerID,
		PriceID:            w.PriceID,
		ProductID:          w.ProductID,
		SubscriptionStatus: w.SubscriptionStatus,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}
	return nil
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTimestamp(*t)
	return &s
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// Projection is the full set of subscription fields written by the reconciler.
// An empty CustomerID keeps the stored customer.
type Projection struct {
	SubscriptionID string
	CustomerID     string
	PriceID        string
	ProductID      string
	Status         string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Store is the only writer of user_entitlements. Each method touches at most
// the rows matched by its key and is a full overwrite, so replays are harmless.
type Store interface {
	// EnsureEntitlement creates the all-NULL row for a new account; existing rows are untouched.
	EnsureEntitlement(ctx context.Context, userID string) error
	GetEntitlement(ctx context.Context, userID string) (Entitlement, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (Entitlement, error)
	// ApplyProjection overwrites the subscription fields of userID's row and
	// reports whether a row matched.
	ApplyProjection(ctx context.Context, userID string, p Projection) (bool, error)
	// ClearSubscription nulls subscription and plan fields of rows holding
	// subscriptionID, keeping stripe_customer_id. It returns the cleared user ids.
	ClearSubscription(ctx context.Context, subscriptionID string) ([]string, error)
	Ping(ctx context.Context) error
}

// NewStore returns the Store implementation for drv.
func NewStore(conn *sql.DB, drv database.Driver) Store {
	if drv == database.DriverSQLite {
		return NewSQLiteStore(conn)
	}
	return NewPostgresStore(conn)
}

const selectColumns = `id, subscription_id, stripe_customer_id, price_id, product_id, subscription_status, current_period_start, current_period_end`

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
