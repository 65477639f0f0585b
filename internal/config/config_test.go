package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INTERNAL_SERVICE_TOKEN", "test-token")
	t.Setenv("AUTH_PROVIDER", "basic")
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TEMPORAL_ADDRESS", "temporal.internal:7233")
	t.Setenv("LOG_KAFKA_BROKERS", "broker-a:9092,broker-b:9092")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "temporal.internal:7233", cfg.Temporal.Address)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Log.KafkaBrokers)
}

func TestLoadRequiresInternalServiceToken(t *testing.T) {
	t.Setenv("INTERNAL_SERVICE_TOKEN", "")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRequiresAdminCredentialsForBasicProvider(t *testing.T) {
	t.Setenv("INTERNAL_SERVICE_TOKEN", "test-token")
	t.Setenv("AUTH_PROVIDER", "basic")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRequiresClerkSecretForClerkProvider(t *testing.T) {
	t.Setenv("INTERNAL_SERVICE_TOKEN", "test-token")
	t.Setenv("AUTH_PROVIDER", "clerk")
	t.Setenv("CLERK_SECRET_KEY", "")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRejectsShortMasterKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SECRET_STORE_MASTER_KEY", "tooshort")
	_, err := config.Load()
	require.Error(t, err)
}
