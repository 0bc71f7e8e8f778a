package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("USER", "jane")
	t.Setenv("UPLOAD_USER", "")
	t.Setenv("JSS_URL", "")
	t.Setenv("DATA_DIR", "/tmp/upload-data")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.JSS.URL)
	assert.Equal(t, "jane", cfg.JSS.User)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 10*time.Second, cfg.Retry.Delay)
	assert.Equal(t, 5*time.Second, cfg.Stream.ReconnectDelay)
	assert.Equal(t, "@every 1m", cfg.Stream.ResyncCron)
	assert.Equal(t, 2*time.Second, cfg.Alerts.Duration)
	assert.Equal(t, "127.0.0.1:7171", cfg.HTTP.Addr)
	assert.False(t, cfg.HTTP.MetricsEnabled)
	assert.Equal(t, filepath.Join("/tmp/upload-data", "upload.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join("/tmp/upload-data", "settings.json"), cfg.SettingsPath())
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("UPLOAD_USER", "joe")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("RECONNECT_DELAY", "3")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("REQUEST_RATE", "2.5")

	cfg, err := NewFromEnv(WithHTTPAddr(":9000"), WithDataDir("/srv/upload"))
	require.NoError(t, err)

	assert.Equal(t, "joe", cfg.JSS.User)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 3*time.Second, cfg.Stream.ReconnectDelay)
	assert.True(t, cfg.HTTP.MetricsEnabled)
	assert.InDelta(t, 2.5, cfg.JSS.RequestRate, 0.001)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "/srv/upload", cfg.System.DataDir)
}

func TestNewFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "relative url", env: map[string]string{"JSS_URL": "jss:8080/path"}},
		{name: "bad cron", env: map[string]string{"RESYNC_CRON": "every minute"}},
		{name: "no attempts", env: map[string]string{"RETRY_ATTEMPTS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("UPLOAD_USER", "jane")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_SettingsFileWins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UPLOAD_USER", "env-user")
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.JSS.User)

	require.NoError(t, WriteRuntimeSettingsFile(cfg.SettingsPath(), RuntimeSettings{
		JSSURL:     "http://saved.example",
		User:       "saved-user",
		ResyncCron: "@every 5m",
	}))

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "saved-user", cfg.JSS.User)
	assert.Equal(t, "http://saved.example", cfg.JSS.URL)
	assert.Equal(t, "@every 5m", cfg.Stream.ResyncCron)
}

func TestNewFromEnv_ExpandsHomeInDataDir(t *testing.T) {
	t.Setenv("HOME", "/home/jane")
	t.Setenv("UPLOAD_USER", "jane")
	t.Setenv("DATA_DIR", "~/uploads")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/jane", "uploads"), cfg.System.DataDir)
}
