package config

import "time"

// ApplyDefaults fills zero-valued fields with sensible defaults.
// It is called after YAML parsing and before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 8080
	}
	if cfg.Listen.TrustedProxies == nil {
		cfg.Listen.TrustedProxies = []string{}
	}

	if cfg.CORS.AllowedOrigins == nil {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}

	if cfg.Limits.PerIP == 0 {
		cfg.Limits.PerIP = 200
	}
	if cfg.Limits.Burst == 0 {
		cfg.Limits.Burst = 50
	}
	if cfg.Limits.CleanupInterval.Duration == 0 {
		cfg.Limits.CleanupInterval.Duration = 5 * time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Shutdown.Timeout.Duration == 0 {
		cfg.Shutdown.Timeout.Duration = 30 * time.Second
	}

	if cfg.Reload.Debounce.Duration == 0 {
		cfg.Reload.Debounce.Duration = 2 * time.Second
	}
}

// DevProfile returns a ready-to-run development configuration.
func DevProfile() *Config {
	cfg := &Config{}
	cfg.Listen.Host = "127.0.0.1"
	cfg.Logging.Format = "text"
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)
	return cfg
}

// DevProfileYAML returns a commented starter config for local development.
func DevProfileYAML() string {
	return `# zeropass development configuration
listen:
  host: 127.0.0.1
  port: 8080

storage:
  backend: memory

limits:
  per_ip: 200
  burst: 50

logging:
  level: debug
  format: text

reload:
  enabled: true
  watch_file: true
`
}

// ProdProfileYAML returns a commented starter config for production.
func ProdProfileYAML() string {
	return `# zeropass production configuration
listen:
  host: 0.0.0.0
  port: 8080
  # trusted_proxies:
  #   - 10.0.0.0/8

cors:
  allowed_origins:
    - "*"

storage:
  backend: redis
  redis:
    addr: localhost:6379
    db: 0

limits:
  per_ip: 200
  burst: 50
  cleanup_interval: 5m

# catalog:
#   file: catalog.yaml

logging:
  level: info
  format: json

shutdown:
  timeout: 30s

reload:
  enabled: true
  watch_file: false
`
}
