package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgerelay/coordinator/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"A_RPC_URL", "A_WS_URL", "A_CHAIN_ID", "A_BRIDGE_CONTRACT", "A_CONFIRMATIONS",
		"A_GAS_LIMIT", "A_GAS_PRICE", "A_PRIVATE_KEY", "A_START_BLOCK",
		"B_WS_URL", "B_PALLET_NAME", "B_CONFIRMATIONS", "B_ACCOUNT_SEED", "B_START_BLOCK",
		"THRESHOLD_SCHEME", "THRESHOLD_K", "THRESHOLD_N", "SIGNATURE_TIMEOUT",
		"DATABASE_URL", "POLL_INTERVAL", "MAX_RETRIES",
		"VALIDATOR_ID", "VALIDATOR_PRIVATE_KEY", "VALIDATOR_ENABLED",
		"API_HOST", "API_PORT", "LOG_LEVEL",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	require.NoError(t, os.Setenv("A_RPC_URL", "http://localhost:8545"))
	require.NoError(t, os.Setenv("B_WS_URL", "ws://localhost:9944"))
	require.NoError(t, os.Setenv("DATABASE_URL", "postgres://localhost/bridge"))
	require.NoError(t, os.Setenv("THRESHOLD_K", "2"))
	require.NoError(t, os.Setenv("THRESHOLD_N", "3"))
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	defer clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(12), cfg.ChainA.Confirmations)
	require.Equal(t, uint64(1), cfg.ChainB.Confirmations)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 8080, cfg.API.Port)
	require.False(t, cfg.Validator.Enabled)
}

func TestLoadRejectsUnknownEnvVar(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	require.NoError(t, os.Setenv("A_TYPO_FIELD", "oops"))
	defer os.Unsetenv("A_TYPO_FIELD")
	defer clearEnv(t)

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRejectsThresholdExceedingTotal(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	require.NoError(t, os.Setenv("THRESHOLD_K", "5"))
	defer clearEnv(t)

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRequiresValidatorCredentialsWhenEnabled(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	require.NoError(t, os.Setenv("VALIDATOR_ENABLED", "true"))
	defer clearEnv(t)

	_, err := config.Load()
	require.Error(t, err)

	require.NoError(t, os.Setenv("VALIDATOR_ID", "validator-1"))
	require.NoError(t, os.Setenv("VALIDATOR_PRIVATE_KEY", "deadbeef"))
	cfg, err := config.Load()
	require.NoError(t, err)
	require.True(t, cfg.Validator.Enabled)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	defer clearEnv(t)

	_, err := config.Load()
	require.Error(t, err)
}
