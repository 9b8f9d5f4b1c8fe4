package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Installer InstallerConfig `yaml:"installer"`
	AdminAPI  AdminAPIConfig  `yaml:"admin_api"`
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// AgentConfig describes the managed agent on this endpoint.
type AgentConfig struct {
	ServiceName string `yaml:"service_name"` // systemd unit the installer registers
	ConfigPath  string `yaml:"config_path"`  // local key=value config the agent maintains
	Domain      string `yaml:"domain"`       // directory domain label carried into the record
}

// InstallerConfig controls how the agent is (re)installed.
type InstallerConfig struct {
	LocalPath     string `yaml:"local_path"`     // preferred installer binary if present
	UninstallArgs string `yaml:"uninstall_args"` // directive passed for removal
}

// AdminAPIConfig locates the agent's local automation surface.
type AdminAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type SecurityConfig struct {
	AllowedKeys    []string `yaml:"allowed_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Sample   float64 `yaml:"sample_rate"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			ServiceName: "mgmt-agent",
			ConfigPath:  "/etc/mgmt-agent/agent.conf",
		},
		Installer: InstallerConfig{
			LocalPath:     "/opt/mgmt-agent/installer/setup",
			UninstallArgs: "--uninstall",
		},
		AdminAPI: AdminAPIConfig{
			BaseURL: "http://127.0.0.1:9990",
			Timeout: 15 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute, // remediation runs synchronously inside the handler
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
		},
		Security: SecurityConfig{
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
			Sample:  0.1,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Agent.ServiceName == "" {
		return fmt.Errorf("agent.service_name must not be empty")
	}
	if c.Agent.ConfigPath == "" {
		return fmt.Errorf("agent.config_path must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.AdminAPI.Timeout <= 0 {
		return fmt.Errorf("admin_api.timeout must be positive, got %s", c.AdminAPI.Timeout)
	}
	if !strings.HasPrefix(c.AdminAPI.BaseURL, "http://") && !strings.HasPrefix(c.AdminAPI.BaseURL, "https://") {
		return fmt.Errorf("admin_api.base_url must be an http(s) URL, got %q", c.AdminAPI.BaseURL)
	}
	if c.Installer.LocalPath != "" && !filepath.IsAbs(c.Installer.LocalPath) {
		return fmt.Errorf("installer.local_path must be absolute, got %q", c.Installer.LocalPath)
	}
	if strings.TrimSpace(c.Installer.UninstallArgs) == "" {
		// Invoking the installer with no uninstall directive performs an install.
		return fmt.Errorf("installer.uninstall_args must not be empty")
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable — connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
