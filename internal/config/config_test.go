package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATE_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "access.granted", cfg.NATSSubject)
	require.Equal(t, 2*time.Minute, cfg.ReportCacheTTL)
	require.Equal(t, 30, cfg.AccessRateLimit)
	require.Equal(t, time.Minute, cfg.AccessRateWindow)
	require.False(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GATE_JWT_SECRET", "secret")
	t.Setenv("GATE_APP_ENV", "Production")
	t.Setenv("GATE_APP_PORT", ":9090")
	t.Setenv("GATE_DATABASE_URL", "postgres://gate@localhost/gate")
	t.Setenv("GATE_NATS_URL", "nats://localhost:4222")
	t.Setenv("GATE_REPORT_CACHE_TTL", "30s")
	t.Setenv("GATE_ACCESS_RATE_LIMIT", "5")
	t.Setenv("GATE_ACCESS_RATE_WINDOW", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, "postgres://gate@localhost/gate", cfg.DatabaseURL)
	require.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	require.Equal(t, 30*time.Second, cfg.ReportCacheTTL)
	require.Equal(t, 5, cfg.AccessRateLimit)
	require.Equal(t, 10*time.Second, cfg.AccessRateWindow)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("GATE_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("GATE_JWT_SECRET", "secret")
	t.Setenv("GATE_REPORT_CACHE_TTL", "soon")
	_, err = Load()
	require.Error(t, err)
}
