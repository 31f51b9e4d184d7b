package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://test@localhost/test")
	t.Setenv("UOM_STRICT_CONVERSIONS", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 10*time.Minute, cfg.UOMCacheTTL)
	require.Equal(t, 30*time.Second, cfg.DocumentLockTTL)
	require.True(t, cfg.UOMStrictConversions)
	require.False(t, cfg.IsProduction())
	require.Equal(t, "info", cfg.LogLevel)
}

func TestRedisOptionsShareCredentials(t *testing.T) {
	cfg := &Config{RedisAddr: "redis:6379", RedisPassword: "secret", RedisDB: 3}

	opts := cfg.RedisOptions()
	require.Equal(t, "redis:6379", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 3, opts.DB)

	q := cfg.AsynqRedis()
	require.Equal(t, opts.Addr, q.Addr)
	require.Equal(t, opts.Password, q.Password)
	require.Equal(t, opts.DB, q.DB)
}

func TestLoadConfigRejectsNonPositiveLockTTL(t *testing.T) {
	t.Setenv("DOCUMENT_LOCK_TTL", "0s")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestInTestModeRefresh(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	require.False(t, RefreshTestMode())
	require.False(t, InTestMode())

	t.Setenv(testModeEnv, "true")
	require.True(t, RefreshTestMode())
}

func TestLoggerAddsServiceAndHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.Int("item", 4))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"service":"backoffice"`)
	require.Contains(t, out, `"env":"staging"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
}
