package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "libraripro.db", cfg.Store.DSN)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())

	policy, err := cfg.LendingPolicy()
	require.NoError(t, err)
	assert.Equal(t, 14, policy.LoanDays)
	assert.Equal(t, 14, policy.RenewalDays)
	assert.Equal(t, 0, policy.MaxRenewals)
	assert.Equal(t, 3, policy.DueSoonDays)
	assert.Equal(t, "1.00", policy.FinePerDay.StringFixed(2))
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
policy:
  max_renewals: 2
  fine_per_day: "0.50"
log:
  level: debug
`), 0o644))
	t.Setenv("LIBRARIPRO_HTTP_PORT", "9090")
	t.Setenv("LIBRARIPRO_POLICY_LOAN_DAYS", "21")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())

	policy, err := cfg.LendingPolicy()
	require.NoError(t, err)
	assert.Equal(t, 21, policy.LoanDays)
	assert.Equal(t, 2, policy.MaxRenewals)
	assert.Equal(t, "0.50", policy.FinePerDay.StringFixed(2))
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: mongo
policy:
  fine_per_day: "a dollar"
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "policy.fine_per_day")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	cfg.Store.Driver = "postgres"
	cfg.Store.DSN = "postgres://localhost/library"

	path := filepath.Join(dir, "nested", "config.yml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
