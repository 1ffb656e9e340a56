package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:9000"
control_plane_url: "https://panel.example.com"
api_token: "tok-123"
server_poll_seconds: 5
vnc_ttl_minutes: 2
converge_window_seconds: 45
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "https://panel.example.com", cfg.ControlPlaneURL)
	assert.Equal(t, "tok-123", cfg.APIToken)
	assert.Equal(t, 5, cfg.ServerPollSeconds)
	assert.Equal(t, 2, cfg.VNCTTLMinutes)
	assert.Equal(t, 45, cfg.ConvergeWindowSeconds)

	// Untouched fields keep their defaults.
	assert.Equal(t, 30, cfg.RequestTimeoutSec)
	assert.Equal(t, 60, cfg.VaultTTLMinutes)
	assert.Equal(t, 2, cfg.ConvergeDelaySeconds)
}

func TestLoadDerivesDBPathFromDataDir(t *testing.T) {
	path := writeConfig(t, `
control_plane_url: "https://panel.example.com"
api_token: "tok"
data_dir: "/srv/virtdash"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/virtdash", "virtdash.db"), cfg.DBPath)
}

func TestLoadReadsTokenFile(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("  secret-token\n"), 0o600))

	path := writeConfig(t, `
control_plane_url: "https://panel.example.com"
api_token_path: "`+tokenPath+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.APIToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [not: valid")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.ControlPlaneURL = "https://panel.example.com"
	valid.APIToken = "tok"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing listen", func(c *Config) { c.Listen = "" }},
		{"listen without port", func(c *Config) { c.Listen = "localhost" }},
		{"bad metrics listen", func(c *Config) { c.MetricsListen = "no-port" }},
		{"missing control plane url", func(c *Config) { c.ControlPlaneURL = "" }},
		{"relative control plane url", func(c *Config) { c.ControlPlaneURL = "panel.example.com" }},
		{"missing token", func(c *Config) { c.APIToken = ""; c.APITokenPath = "" }},
		{"missing db path", func(c *Config) { c.DBPath = "" }},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSec = 0 }},
		{"zero vault ttl", func(c *Config) { c.VaultTTLMinutes = 0 }},
		{"zero poll interval", func(c *Config) { c.ServerPollSeconds = 0 }},
		{"window under interval", func(c *Config) { c.ConvergeWindowSeconds = 1; c.ConvergeIntervalSeconds = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeoutSec = 15
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
}
