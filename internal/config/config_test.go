package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("SLA_SWEEP_ALL_INTERVAL", "")
	t.Setenv("NOTIFY_ESCALATION_RECIPIENTS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.AllInterval)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.BusinessHoursInterval)
	assert.Equal(t, time.Minute, cfg.Monitor.CriticalInterval)
	assert.True(t, cfg.Monitor.CriticalInterval < cfg.Monitor.BusinessHoursInterval &&
		cfg.Monitor.BusinessHoursInterval < cfg.Monitor.AllInterval, "tiers tighten as they narrow")
	assert.Equal(t, "@hourly", cfg.Monitor.DedupResetSchedule)
	assert.Empty(t, cfg.Notification.EscalationRecipients)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_SWEEP_CRITICAL_INTERVAL", "30s")
	t.Setenv("SLA_SWEEP_ALL_INTERVAL", "not-a-duration")
	t.Setenv("NOTIFY_ESCALATION_RECIPIENTS", " lead-1, ,lead-2 ")
	t.Setenv("NOTIFY_WORKERS", "4")
	t.Setenv("SLA_DEFAULT_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Monitor.CriticalInterval)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.AllInterval)
	assert.Equal(t, []string{"lead-1", "lead-2"}, cfg.Notification.EscalationRecipients)
	assert.Equal(t, 4, cfg.Notification.Workers)
	assert.Equal(t, "Europe/Berlin", cfg.Monitor.DefaultTimezone)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("redis db", func(t *testing.T) {
		t.Setenv("REDIS_DB", "zero")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("negative interval", func(t *testing.T) {
		t.Setenv("SLA_SWEEP_BUSINESS_INTERVAL", "-1m")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("timezone", func(t *testing.T) {
		t.Setenv("SLA_DEFAULT_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestMemoryStoreOnlyByDefaultInDevelopment(t *testing.T) {
	t.Setenv("SLA_ALLOW_MEMORY_STORE", "")

	t.Setenv("APP_ENV", "development")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Postgres.AllowMemoryStore)

	t.Setenv("APP_ENV", "production")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.Postgres.AllowMemoryStore)

	t.Setenv("SLA_ALLOW_MEMORY_STORE", "true")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Postgres.AllowMemoryStore)
}
