package config

import (
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// ProdDbId is the identifier for the production database
	ProdDbId = "old-cloud"

	DefaultHTTPPort = "8080"
)

// Change notification backends.
const (
	NotifyBackendAuto     = "auto"
	NotifyBackendPostgres = "postgres"
	NotifyBackendRedis    = "redis"
	NotifyBackendLocal    = "local"
)

// CheckNotProdDB aborts immediately if the configured database URL contains ProdDbId.
// This should be called at the start of any test that interacts with a shared database.
func CheckNotProdDB() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DatabaseURL is not configured")
	}
	if strings.Contains(cfg.DatabaseURL, ProdDbId) {
		log.Fatal().Str("identifier", ProdDbId).Msg("tests aborted: DatabaseURL contains production identifier")
	}
}
