package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig_Environment_Integration checks a deployment environment:
// every required variable is set, the plan catalog parses, and the notify
// backend resolved to something the server can run.
func TestLoadConfig_Environment_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping environment config test in -short mode")
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Skipf("deployment environment not configured: %v", err)
	}
	plans, err := cfg.PlanCatalog()
	require.NoError(t, err)
	assert.NotEmpty(t, plans.Plans())
	assert.Contains(t, []string{NotifyBackendPostgres, NotifyBackendRedis, NotifyBackendLocal}, cfg.NotifyBackend)
}
