package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "APP_DEBUG", "DATABASE_URL", "DB_HOST", "DB_USER", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "REDIS_DISABLED", "HTTP_PORT", "HTTP_ALLOWED_ORIGINS",
		"AGGREGATE_CASCADE_STRATEGY", "AGGREGATE_EVALUATION_STRATEGY", "AGGREGATE_DISTRIBUTED_LOCK",
		"AGGREGATE_LOCK_TTL", "AGGREGATE_LOCK_WAIT", "CASCADE_STEP_TIMEOUT",
		"SCHEDULER_ENABLED", "SCHEDULER_REBUILD_SCHEDULE", "SCHEDULER_RESUME_SCHEDULE",
		"SCHEDULER_REBUILD_PAGE_SIZE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.UsesMemoryStore())
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, grading.StrategyRawSum, cfg.Consistency.CascadeStrategy)
	assert.Equal(t, grading.StrategySimpleMedia, cfg.Consistency.EvaluationStrategy)
	assert.Equal(t, 10*time.Second, cfg.Consistency.CascadeStepTimeout)
	assert.Equal(t, "@every 1h", cfg.Scheduler.RebuildAggregatesSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "avalia")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AGGREGATE_CASCADE_STRATEGY", "SIMPLE_MEDIA")
	t.Setenv("CASCADE_STEP_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://avalia:@db:5432/avalia?sslmode=disable", cfg.Database.URL)
	assert.False(t, cfg.UsesMemoryStore())
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, grading.StrategySimpleMedia, cfg.Consistency.CascadeStrategy)
	assert.Equal(t, 2*time.Second, cfg.Consistency.CascadeStepTimeout)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown strategy", map[string]string{"AGGREGATE_CASCADE_STRATEGY": "median"}},
		{"production without database", map[string]string{"APP_ENV": "production"}},
		{"distributed lock without redis", map[string]string{"AGGREGATE_DISTRIBUTED_LOCK": "true"}},
		{"port out of range", map[string]string{"HTTP_PORT": "70000"}},
		{"pool sizes", map[string]string{"DB_MIN_CONNS": "20", "DB_MAX_CONNS": "5"}},
		{"log level", map[string]string{"LOG_LEVEL": "trace"}},
		{"page size", map[string]string{"SCHEDULER_REBUILD_PAGE_SIZE": "0"}},
		{"bad schedule", map[string]string{"SCHEDULER_REBUILD_SCHEDULE": "every hour"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "AVALIA_CONFIG_TEST_DOTENV"
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	require.NoError(t, loadDotEnv(filepath.Join(dir, ".env.missing"), path))
	assert.Equal(t, "from-file", os.Getenv(key))
}

func TestLoadDotEnv_EnvironmentWins(t *testing.T) {
	const key = "AVALIA_CONFIG_TEST_PRESET"
	t.Setenv(key, "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv(key))
}
