package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type postgresStore struct{ db *sql.DB }

// NewPostgresStore returns a Store over a lib/pq connection.
func NewPostgresStore(conn *sql.DB) Store { return postgresStore{db: conn} }

func (s postgresStore) EnsureEntitlement(ctx context.Context, userID string) error {
	if !isUUID(userID) {
		return fmt.Errorf("user id %q is not a uuid", userID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_entitlements (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("insert user_entitlements: %w", err)
	}
	return nil
}

func (s postgresStore) GetEntitlement(ctx context.Context, userID string) (Entitlement, error) {
	if !isUUID(userID) {
		return Entitlement{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM user_entitlements WHERE id = $1`, userID)
	return scanPostgres(row)
}

func (s postgresStore) FindBySubscriptionID(ctx context.Context, subscriptionID string) (Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM user_entitlements WHERE subscription_id = $1 ORDER BY id LIMIT 1`, subscriptionID)
	return scanPostgres(row)
}

func (s postgresStore) ApplyProjection(ctx context.Context, userID string, p Projection) (bool, error) {
	if !isUUID(userID) {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_entitlements SET
			subscription_id = $2,
			stripe_customer_id = COALESCE($3, stripe_customer_id),
			price_id = $4,
			product_id = $5,
			subscription_status = $6,
			current_period_start = $7,
			current_period_end = $8
		WHERE id = $1`,
		userID, p.SubscriptionID, nullable(p.CustomerID), nullable(p.PriceID), nullable(p.ProductID),
		nullable(p.Status), p.PeriodStart.UTC(), p.PeriodEnd.UTC())
	if err != nil {
		return false, fmt.Errorf("update user_entitlements: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s postgresStore) ClearSubscription(ctx context.Context, subscriptionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE user_entitlements SET
			subscription_id = NULL,
			price_id = NULL,
			product_id = NULL,
			subscription_status = NULL,
			current_period_start = NULL,
			current_period_end = NULL
		WHERE subscription_id = $1
		RETURNING id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("clear user_entitlements: %w", err)
	}
	return collectIDs(rows)
}

func (s postgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// id is a uuid column; anything else can never match and would fail the query.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func scanPostgres(row *sql.Row) (Entitlement, error) {
	var (
		e                                 Entitlement
		sub, cust, price, product, status sql.NullString
		start, end                        sql.NullTime
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
	if start.Valid {
		t := start.Time.UTC()
		e.CurrentPeriodStart = &t
	}
	if end.Valid {
		t := end.Time.UTC()
		e.CurrentPeriodEnd = &t
	}
	return e, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
