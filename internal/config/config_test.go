package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"RMSYNC_API_URL", "HTTP_TIMEOUT", "HTTP_MAX_RETRIES", "HTTP_RETRY_WAIT",
	"DATABASE_DRIVER", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_BUSY_TIMEOUT",
	"REDIS_URL", "HOST", "PORT", "CORS_ALLOWED_ORIGINS",
	"PAGE_SIZE", "PREFETCH_DISTANCE", "CACHE_TIMEOUT", "WARM_INTERVAL", "WARM_ON_START",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
}

// clearEnv blanks every key so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://rickandmortyapi.com/api", cfg.Remote.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 3, cfg.Remote.MaxRetries)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 20, cfg.Paging.PageSize)
	assert.Equal(t, time.Hour, cfg.Paging.CacheTimeout)
	assert.Zero(t, cfg.Warm.Interval)
	assert.True(t, cfg.Warm.OnStart)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://rm:rm@localhost:5432/rm?sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TIMEOUT", "30m")
	t.Setenv("WARM_INTERVAL", "600")
	t.Setenv("WARM_ON_START", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test,")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Paging.CacheTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Warm.Interval)
	assert.False(t, cfg.Warm.OnStart)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"bad url", "RMSYNC_API_URL", "not a url"},
		{"bad duration", "CACHE_TIMEOUT", "soon"},
		{"zero cache timeout", "CACHE_TIMEOUT", "0"},
		{"port out of range", "PORT", "70000"},
		{"page size too large", "PAGE_SIZE", "1000"},
		{"unknown log level", "LOG_LEVEL", "trace"},
		{"bad redis url", "REDIS_URL", "::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are set, even to ""
	os.Unsetenv("PAGE_SIZE")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PAGE_SIZE=40\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("PAGE_SIZE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Paging.PageSize)
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("RMSYNC_TEST_DUR", "")
	d, err := getEnvDuration("RMSYNC_TEST_DUR", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	t.Setenv("RMSYNC_TEST_DUR", "45")
	d, err = getEnvDuration("RMSYNC_TEST_DUR", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	t.Setenv("RMSYNC_TEST_DUR", "1h30m")
	d, err = getEnvDuration("RMSYNC_TEST_DUR", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}
