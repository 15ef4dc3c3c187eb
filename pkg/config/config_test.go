package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "fredledger.db", cfg.DatabasePath)
	require.Equal(t, 100, cfg.ReceiptQueueSize)
	require.Equal(t, "https://wa.me", cfg.WhatsAppBaseURL)
	require.False(t, cfg.Production())
	require.Equal(t, money.DefaultPeriodPolicy, cfg.PeriodPolicy())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEDGER_SERVER_ADDR", ":9090")
	t.Setenv("LEDGER_PERIODS_WEEKLY", "12")
	t.Setenv("LEDGER_ENV", "Production")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, 12, cfg.PeriodPolicy()[money.Weekly])
	require.True(t, cfg.Production())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LEDGER_DATABASE_PATH=/tmp/ledger-test.db\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LEDGER_DATABASE_PATH") })

	cfg, err := Load(envFile)
	require.NoError(t, err)
	require.Equal(t, "/tmp/ledger-test.db", cfg.DatabasePath)

	// A missing .env file is not an error.
	_, err = Load(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEDGER_PERIODS_DAILY", "0")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadAppEnvAndLogLevel(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Production())
	require.Equal(t, "warn", cfg.LogLevel)

	// The prefixed names win when both are set.
	t.Setenv("LEDGER_LOG_LEVEL", "debug")
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
