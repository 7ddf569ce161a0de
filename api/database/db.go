package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	config "github.com/tbeaudouin05/stripe-entitlements/api/config"
)

// Driver names the SQL dialect behind a connection.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

const sqliteScheme = "sqlite://"

// Conn pairs an open pool with its dialect.
type Conn struct {
	DB     *sql.DB
	Driver Driver
}

var db *sql.DB
var driver Driver

// Initialize connects to the configured database and verifies the connection
func Initialize() error {
	conn, drv, err := Open(config.AppConfig.DatabaseURL)
	if err != nil {
		return err
	}
	db, driver = conn, drv
	return nil
}

// Open connects to dsn, picking lib/pq for postgres:// URLs and the embedded
// SQLite driver for sqlite:// paths.
func Open(dsn string) (*sql.DB, Driver, error) {
	drv := DriverFor(dsn)
	var (
		conn *sql.DB
		err  error
	)
	switch drv {
	case DriverSQLite:
		conn, err = sql.Open("sqlite", sqliteDSN(dsn))
	default:
		conn, err = sql.Open("postgres", withDisablePreparedStatements(dsn))
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s database: %w", drv, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	// Use a single connection to avoid prepared statement issues with PgBouncer/Neon,
	// and to serialize writers on SQLite.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return conn, drv, nil
}

// DriverFor reports which driver Open would use for dsn.
func DriverFor(dsn string) Driver {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(dsn)), sqliteScheme) {
		return DriverSQLite
	}
	return DriverPostgres
}

func sqliteDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	path := trimmed[len(sqliteScheme):]
	return path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
}

// withDisablePreparedStatements appends disable_prepared_statements=true and binary_parameters=yes to the DSN if not present.
// This nudges lib/pq to avoid server-side prepared statements and binary mode, which can break with PgBouncer transaction pooling.
func withDisablePreparedStatements(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.Contains(lower, "disable_prepared_statements=") || strings.Contains(lower, "prefer_simple_protocol=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	extras := []string{"disable_prepared_statements=true"}
	if !strings.Contains(lower, "binary_parameters=") {
		extras = append(extras, "binary_parameters=yes")
	}
	return dsn + sep + strings.Join(extras, "&")
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// GetDriver returns the dialect of the connection returned by GetDB.
func GetDriver() Driver {
	return driver
}

// Close releases the process-wide connection, if any.
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}
