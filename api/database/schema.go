package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ChangeChannel is the notification channel carrying the id of every
// user_entitlements row that was inserted or updated.
const ChangeChannel = "entitlement_changes"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_entitlements (
		id                   uuid PRIMARY KEY,
		subscription_id      text,
		stripe_customer_id   text,
		price_id             text,
		product_id           text,
		subscription_status  text,
		current_period_start timestamptz,
		current_period_end   timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_entitlements_subscription_id ON user_entitlements (subscription_id)`,
	`CREATE OR REPLACE FUNCTION notify_entitlement_change() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + ChangeChannel + `', NEW.id::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS user_entitlements_notify ON user_entitlements`,
	`CREATE TRIGGER user_entitlements_notify
		AFTER INSERT OR UPDATE ON user_entitlements
		FOR EACH ROW EXECUTE FUNCTION notify_entitlement_change()`,
}

// SQLite keeps timestamps as RFC3339 text; there is no native change feed.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_entitlements (
		id                   TEXT PRIMARY KEY,
		subscription_id      TEXT,
		stripe_customer_id   TEXT,
		price_id             TEXT,
		product_id           TEXT,
		subscription_status  TEXT,
		current_period_start TEXT,
		current_period_end   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_entitlements_subscription_id ON user_entitlements (subscription_id)`,
}

// Migrate creates the entitlement schema. Every statement is idempotent.
func Migrate(ctx context.Context, conn *sql.DB, drv Driver) error {
	stmts := postgresSchema
	if drv == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", drv, err)
		}
	}
	return nil
}
