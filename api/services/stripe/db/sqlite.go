package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type sqliteStore struct{ db *sql.DB }

// NewSQLiteStore returns a Store over the embedded SQLite driver. Timestamps
// are stored as RFC3339 text in UTC.
func NewSQLiteStore(conn *sql.DB) Store { return sqliteStore{db: conn} }

func (s sqliteStore) EnsureEntitlement(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_entitlements (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("insert user_entitlements: %w", err)
	}
	return nil
}

func (s sqliteStore) GetEntitlement(ctx context.Context, userID string) (Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM user_entitlements WHERE id = ?`, userID)
	return scanSQLite(row)
}

func (s sqliteStore) FindBySubscriptionID(ctx context.Context, subscriptionID string) (Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM user_entitlements WHERE subscription_id = ? ORDER BY id LIMIT 1`, subscriptionID)
	return scanSQLite(row)
}

func (s sqliteStore) ApplyProjection(ctx context.Context, userID string, p Projection) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_entitlements SET
			subscription_id = ?,
			stripe_customer_id = COALESCE(?, stripe_customer_id),
			price_id = ?,
			product_id = ?,
			subscription_status = ?,
			current_period_start = ?,
			current_period_end = ?
		WHERE id = ?`,
		p.SubscriptionID, nullable(p.CustomerID), nullable(p.PriceID), nullable(p.ProductID),
		nullable(p.Status), p.PeriodStart.UTC().Format(time.RFC3339Nano), p.PeriodEnd.UTC().Format(time.RFC3339Nano), userID)
	if err != nil {
		return false, fmt.Errorf("update user_entitlements: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s sqliteStore) ClearSubscription(ctx context.Context, subscriptionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE user_entitlements SET
			subscription_id = NULL,
			price_id = NULL,
			product_id = NULL,
			subscription_status = NULL,
			current_period_start = NULL,
			current_period_end = NULL
		WHERE subscription_id = ?
		RETURNING id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("clear user_entitlements: %w", err)
	}
	return collectIDs(rows)
}

func (s sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func scanSQLite(row *sql.Row) (Entitlement, error) {
	var (
		e                                             Entitlement
		sub, cust, price, product, status, start, end sql.NullString
	)
	if err := row.Scan(&e.ID, &sub, &cust, &price, &product, &status, &start, &end); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entitlement{}, ErrNotFound
		}
		return Entitlement{}, fmt.Errorf("scan user_entitlements: %w", err)
	}
	e.SubscriptionID = stringPtr(sub)
	e.StripeCustomerID = stringPtr(cust)
	e.PriceID = stringPtr(price)
	e.ProductID = stringPtr(product)
	e.SubscriptionStatus = stringPtr(status)

	var err error
	if e.CurrentPeriodStart, err = parseTimePtr(stringPtr(start)); err != nil {
		return Entitlement{}, fmt.Errorf("parse current_period_start: %w", err)
	}
	if e.CurrentPeriodEnd, err = parseTimePtr(stringPtr(end)); err != nil {
		return Entitlement{}, fmt.Errorf("parse current_period_end: %w", err)
	}
	return e, nil
}
