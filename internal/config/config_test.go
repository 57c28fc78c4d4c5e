package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD_INT", "forty-two")
	t.Setenv("CFG_BOOL", "yes")
	t.Setenv("CFG_DURATION", "90s")

	assert.Equal(t, "fallback", GetEnv("CFG_MISSING", "fallback"))
	assert.Equal(t, 42, GetEnvInt("CFG_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CFG_BAD_INT", 1))
	assert.True(t, GetEnvBool("CFG_BOOL", false))
	assert.Equal(t, 90*time.Second, GetEnvDuration("CFG_DURATION", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("CFG_MISSING", time.Second))
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_DRIVER=sqlite\nWEB_PORT=9999\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("WEB_PORT", "7000")
	// Registered so t.Setenv restores it after godotenv sets it.
	t.Setenv("DB_DRIVER", "")
	require.NoError(t, os.Unsetenv("DB_DRIVER"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 7000, cfg.WebPort)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	assert.Equal(t, "/tmp/x.db", Config{DBDriver: "sqlite", DBDSN: "/tmp/x.db"}.DSN())
	assert.Equal(t, "ocd-calaccess.db", Config{DBDriver: "sqlite"}.DSN())
	assert.Contains(t, Config{DBDriver: "postgres"}.DSN(), "host=db.internal")
}
