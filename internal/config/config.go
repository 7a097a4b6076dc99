// Package config handles YAML configuration parsing, defaults, and validation
// for the zeropass firewall rule simulator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for zeropass.
type Config struct {
	Listen      ListenConfig   `yaml:"listen"`
	ExternalURL string         `yaml:"external_url"`
	CORS        CORSConfig     `yaml:"cors"`
	Storage     StorageConfig  `yaml:"storage"`
	Limits      LimitsConfig   `yaml:"limits"`
	Catalog     CatalogConfig  `yaml:"catalog"`
	Logging     LoggingConfig  `yaml:"logging"`
	Shutdown    ShutdownConfig `yaml:"shutdown"`
	Reload      ReloadConfig   `yaml:"reload"`
}

// ListenConfig defines the listener address and proxy trust.
type ListenConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// CORSConfig defines the allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend string      `yaml:"backend"` // "memory" or "redis"
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LimitsConfig defines the per-client-IP guard protecting the API itself.
// This is distinct from the rate-limit rules inside a policy.
type LimitsConfig struct {
	PerIP           int      `yaml:"per_ip"`
	Burst           int      `yaml:"burst"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// CatalogConfig points at an optional YAML file extending the built-in
// template and scenario catalog.
type CatalogConfig struct {
	File string `yaml:"file"`
}

// LoggingConfig defines log output format and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ShutdownConfig defines the graceful shutdown timeout.
type ShutdownConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ReloadConfig controls config hot-reload behavior (SIGHUP and file watching).
type ReloadConfig struct {
	Enabled   bool     `yaml:"enabled"`
	WatchFile bool     `yaml:"watch_file"`
	Debounce  Duration `yaml:"debounce"`
}

// Duration is a time.Duration that supports YAML string parsing (e.g., "60s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration, parsing strings like "60s" or "5m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Load reads, parses, applies defaults and environment overrides, and
// validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides maps the two deployment environment variables onto
// the config. Environment wins over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.ExternalURL = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
}
