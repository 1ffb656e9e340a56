package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds daemon settings: listeners, control plane credentials,
// cache staleness windows, and convergence polling knobs.
type Config struct {
	ConfigPath string

	Listen        string
	MetricsListen string

	DataDir string
	DBPath  string

	ControlPlaneURL   string
	APIToken          string
	APITokenPath      string
	RequestTimeoutSec int

	VaultKeyPath    string
	VaultTTLMinutes int

	ServerPollSeconds  int
	WatchWindowMinutes int
	VNCTTLMinutes      int
	TrafficTTLSeconds  int
	TemplatesTTLMin    int
	BrandingTTLMin     int

	ConvergeDelaySeconds    int
	ConvergeIntervalSeconds int
	ConvergeWindowSeconds   int
}

// FileConfig represents supported YAML config overrides.
type FileConfig struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`

	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`

	ControlPlaneURL   string `yaml:"control_plane_url"`
	APIToken          string `yaml:"api_token"`
	APITokenPath      string `yaml:"api_token_path"`
	RequestTimeoutSec int    `yaml:"request_timeout_seconds"`

	VaultKeyPath    string `yaml:"vault_key_path"`
	VaultTTLMinutes int    `yaml:"vault_ttl_minutes"`

	ServerPollSeconds  int `yaml:"server_poll_seconds"`
	WatchWindowMinutes int `yaml:"watch_window_minutes"`
	VNCTTLMinutes      int `yaml:"vnc_ttl_minutes"`
	TrafficTTLSeconds  int `yaml:"traffic_ttl_seconds"`
	TemplatesTTLMin    int `yaml:"templates_ttl_minutes"`
	BrandingTTLMin     int `yaml:"branding_ttl_minutes"`

	ConvergeDelaySeconds    int `yaml:"converge_delay_seconds"`
	ConvergeIntervalSeconds int `yaml:"converge_interval_seconds"`
	ConvergeWindowSeconds   int `yaml:"converge_window_seconds"`
}

func DefaultConfig() Config {
	dataDir := "/var/lib/virtdash"
	return Config{
		ConfigPath:              "/etc/virtdash/config.yaml",
		Listen:                  "127.0.0.1:8480",
		MetricsListen:           "",
		DataDir:                 dataDir,
		DBPath:                  filepath.Join(dataDir, "virtdash.db"),
		RequestTimeoutSec:       30,
		VaultKeyPath:            "/etc/virtdash/keys/age.key",
		VaultTTLMinutes:         60,
		ServerPollSeconds:       10,
		WatchWindowMinutes:      2,
		VNCTTLMinutes:           5,
		TrafficTTLSeconds:       60,
		TemplatesTTLMin:         10,
		BrandingTTLMin:          10,
		ConvergeDelaySeconds:    2,
		ConvergeIntervalSeconds: 3,
		ConvergeWindowSeconds:   30,
	}
}

// Load reads the YAML config file and applies overrides to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		cfg.ConfigPath = path
	}
	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", cfg.ConfigPath, err)
	}
	var fileCfg FileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", cfg.ConfigPath, err)
	}
	applyFileConfig(&cfg, fileCfg)
	if fileCfg.DataDir != "" && fileCfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "virtdash.db")
	}
	if cfg.APIToken == "" && cfg.APITokenPath != "" {
		tokenData, err := os.ReadFile(cfg.APITokenPath)
		if err != nil {
			return cfg, fmt.Errorf("read api token %s: %w", cfg.APITokenPath, err)
		}
		cfg.APIToken = strings.TrimSpace(string(tokenData))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fileCfg FileConfig) {
	if fileCfg.Listen != "" {
		cfg.Listen = fileCfg.Listen
	}
	if fileCfg.MetricsListen != "" {
		cfg.MetricsListen = fileCfg.MetricsListen
	}
	if fileCfg.DataDir != "" {
		cfg.DataDir = fileCfg.DataDir
	}
	if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	}
	if fileCfg.ControlPlaneURL != "" {
		cfg.ControlPlaneURL = fileCfg.ControlPlaneURL
	}
	if fileCfg.APIToken != "" {
		cfg.APIToken = fileCfg.APIToken
	}
	if fileCfg.APITokenPath != "" {
		cfg.APITokenPath = fileCfg.APITokenPath
	}
	if fileCfg.RequestTimeoutSec > 0 {
		cfg.RequestTimeoutSec = fileCfg.RequestTimeoutSec
	}
	if fileCfg.VaultKeyPath != "" {
		cfg.VaultKeyPath = fileCfg.VaultKeyPath
	}
	if fileCfg.VaultTTLMinutes > 0 {
		cfg.VaultTTLMinutes = fileCfg.VaultTTLMinutes
	}
	if fileCfg.ServerPollSeconds > 0 {
		cfg.ServerPollSeconds = fileCfg.ServerPollSeconds
	}
	if fileCfg.WatchWindowMinutes > 0 {
		cfg.WatchWindowMinutes = fileCfg.WatchWindowMinutes
	}
	if fileCfg.VNCTTLMinutes > 0 {
		cfg.VNCTTLMinutes = fileCfg.VNCTTLMinutes
	}
	if fileCfg.TrafficTTLSeconds > 0 {
		cfg.TrafficTTLSeconds = fileCfg.TrafficTTLSeconds
	}
	if fileCfg.TemplatesTTLMin > 0 {
		cfg.TemplatesTTLMin = fileCfg.TemplatesTTLMin
	}
	if fileCfg.BrandingTTLMin > 0 {
		cfg.BrandingTTLMin = fileCfg.BrandingTTLMin
	}
	if fileCfg.ConvergeDelaySeconds > 0 {
		cfg.ConvergeDelaySeconds = fileCfg.ConvergeDelaySeconds
	}
	if fileCfg.ConvergeIntervalSeconds > 0 {
		cfg.ConvergeIntervalSeconds = fileCfg.ConvergeIntervalSeconds
	}
	if fileCfg.ConvergeWindowSeconds > 0 {
		cfg.ConvergeWindowSeconds = fileCfg.ConvergeWindowSeconds
	}
}

// Validate performs basic validation without exposing secrets.
func (c Config) Validate() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("config_path is required")
	}
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen must be host:port: %w", err)
	}
	if strings.TrimSpace(c.MetricsListen) != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			return fmt.Errorf("metrics_listen must be host:port: %w", err)
		}
	}
	if c.ControlPlaneURL == "" {
		return fmt.Errorf("control_plane_url is required")
	}
	parsed, err := url.Parse(c.ControlPlaneURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("control_plane_url must be an absolute URL (got %q)", c.ControlPlaneURL)
	}
	if c.APIToken == "" && c.APITokenPath == "" {
		return fmt.Errorf("api_token or api_token_path is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.RequestTimeoutSec <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive")
	}
	if c.VaultTTLMinutes <= 0 {
		return fmt.Errorf("vault_ttl_minutes must be positive")
	}
	if c.ServerPollSeconds <= 0 {
		return fmt.Errorf("server_poll_seconds must be positive")
	}
	if c.ConvergeIntervalSeconds <= 0 {
		return fmt.Errorf("converge_interval_seconds must be positive")
	}
	if c.ConvergeWindowSeconds < c.ConvergeIntervalSeconds {
		return fmt.Errorf("converge_window_seconds must be at least converge_interval_seconds")
	}
	return nil
}

// RequestTimeout returns the control plane HTTP timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
