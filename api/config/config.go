package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds the global application configuration
var AppConfig *Config

// Config holds the application configuration
type Config struct {
	DatabaseURL         string
	StripeSecretKey     string
	StripeWebhookSecret string
	// Secret the auth provider signs session tokens (JWT, HS256) with.
	AuthJWTSecret string
	// Comma separated price_id=Name pairs, e.g. "price_xxx=Free,price_yyy=Premium"
	Plans string
	// postgres | redis | local | auto
	NotifyBackend string
	RedisURL      string
	// Optional: billing portal link handed to clients next to their entitlement.
	CustomerPortalURL string
	LogLevel          string
	LogFormat         string
	// Optional: base URL for running remote HTTP integration tests (e.g., https://api.example.com)
	IntegrationBaseURL string
	// Server port
	HTTPPort string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{}

	// Try to load .env file from current directory and parent directories
	currentDir, _ := os.Getwd()
	for currentDir != "/" && currentDir != "." {
		envPath := filepath.Join(currentDir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			err = godotenv.Load(envPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load .env file: %v", err)
			}
			break
		}
		currentDir = filepath.Dir(currentDir)
	}

	requiredVars := []struct {
		name     string
		envVar   string
		display  string
		required bool
	}{
		{"DatabaseURL", "DATABASE_URL", "Database URL", true},
		{"StripeSecretKey", "STRIPE_SECRET_KEY", "Stripe Secret Key", true},
		{"StripeWebhookSecret", "STRIPE_WEBHOOK_SECRET", "Stripe Webhook Secret", true},
		{"AuthJWTSecret", "AUTH_JWT_SECRET", "Auth JWT Secret", true},
		{"Plans", "PLANS", "Plans", true},
		{"NotifyBackend", "NOTIFY_BACKEND", "Notify Backend", false},
		{"RedisURL", "REDIS_URL", "Redis URL", false},
		{"CustomerPortalURL", "CUSTOMER_PORTAL_URL", "Customer Portal URL", false},
		{"LogLevel", "LOG_LEVEL", "Log Level", false},
		{"LogFormat", "LOG_FORMAT", "Log Format", false},
		{"IntegrationBaseURL", "INTEGRATION_BASE_URL", "Integration Base URL", false},
		{"HTTPPort", "PORT", "HTTP Port", false},
	}

	for _, v := range requiredVars {
		value := strings.TrimSpace(os.Getenv(v.envVar))
		if v.required && value == "" {
			return nil, fmt.Errorf("missing required environment variable: %s", v.display)
		}
		configField := reflect.ValueOf(config).Elem().FieldByName(v.name)
		configField.SetString(value)
	}

	// Defaults
	if config.HTTPPort == "" {
		config.HTTPPort = DefaultHTTPPort
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "json"
	}

	backend, err := resolveNotifyBackend(config.NotifyBackend, config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	config.NotifyBackend = backend
	if backend == NotifyBackendRedis && config.RedisURL == "" {
		return nil, fmt.Errorf("missing required environment variable: Redis URL (NOTIFY_BACKEND=redis)")
	}

	// Fail fast on a catalog the checkout endpoint could not use.
	if _, err := ParsePlans(config.Plans); err != nil {
		return nil, err
	}

	return config, nil
}

// PlanCatalog parses the configured plans.
func (c *Config) PlanCatalog() (PlanCatalog, error) {
	return ParsePlans(c.Plans)
}

func resolveNotifyBackend(value, databaseURL string) (string, error) {
	switch strings.ToLower(value) {
	case "", NotifyBackendAuto:
		if IsPostgresURL(databaseURL) {
			return NotifyBackendPostgres, nil
		}
		return NotifyBackendLocal, nil
	case NotifyBackendPostgres:
		if !IsPostgresURL(databaseURL) {
			return "", fmt.Errorf("notify backend %q requires a postgres database URL", value)
		}
		return NotifyBackendPostgres, nil
	case NotifyBackendRedis:
		return NotifyBackendRedis, nil
	case NotifyBackendLocal:
		return NotifyBackendLocal, nil
	default:
		return "", fmt.Errorf("unknown notify backend %q", value)
	}
}

// IsPostgresURL reports whether dsn points at Postgres rather than the embedded store.
func IsPostgresURL(dsn string) bool {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
