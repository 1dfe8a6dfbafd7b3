package litepool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jirevwe/litepool/pool"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "litepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, DefaultDBPath, cfg.DBPath)
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
	require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	require.Zero(t, cfg.VisibilityDelay)
	require.Equal(t, pool.DefaultConfig(), cfg.Pool)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
pool:
  minimum_threads: 2
  starting_threads: 4
db_path: /var/lib/litepool/jobs.db
poll_interval: 250ms
visibility_delay: 1s
retry_delay: 50ms
metrics_namespace: jobs
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, pool.Config{MinimumThreads: 2, MaximumThreads: 16, StartingThreads: 4}, cfg.Pool)
	require.Equal(t, "/var/lib/litepool/jobs.db", cfg.DBPath)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.Equal(t, time.Second, cfg.VisibilityDelay)
	require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, 50*time.Millisecond, cfg.RetryDelay)
	require.Equal(t, "jobs", cfg.MetricsNamespace)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"starting above maximum", "pool:\n  maximum_threads: 2\n  starting_threads: 3\n"},
		{"negative poll interval", "poll_interval: -1s\n"},
		{"negative retries", "max_retries: -2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.ErrorIs(t, err, pool.ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "pool: [1, 2"))
	require.Error(t, err)
}
