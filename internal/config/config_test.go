package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "inbound-smtp.us-east-1.amazonaws.com", cfg.Mail.InboundMXHost)
	assert.Equal(t, 10, cfg.Mail.MXPriority)
	assert.Equal(t, "_amazonses", cfg.Mail.VerificationPrefix)
	assert.Equal(t, 5*time.Second, cfg.DNS.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Redis.ReportTTL)
	assert.Equal(t, "usage:events", cfg.Usage.Queue)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://db/inbound")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("INBOUND_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/inbound", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
