package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Validate checks the configuration for errors. It collects ALL errors
// rather than stopping at the first one, returning them as a joined message.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535 (got %d)", cfg.Listen.Port))
	}
	for i, p := range cfg.Listen.TrustedProxies {
		if !validProxySpec(p) {
			errs = append(errs, fmt.Sprintf("listen.trusted_proxies[%d]: invalid IP or CIDR %q", i, p))
		}
	}

	if !isValidBackend(cfg.Storage.Backend) {
		errs = append(errs, fmt.Sprintf("storage.backend must be one of: memory, redis (got %q)", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == "redis" && cfg.Storage.Redis.Addr == "" {
		errs = append(errs, "storage.redis.addr is required when storage.backend is redis")
	}
	if cfg.Storage.Redis.DB < 0 {
		errs = append(errs, fmt.Sprintf("storage.redis.db must not be negative (got %d)", cfg.Storage.Redis.DB))
	}

	if cfg.Limits.PerIP < 1 {
		errs = append(errs, fmt.Sprintf("limits.per_ip must be positive (got %d)", cfg.Limits.PerIP))
	}
	if cfg.Limits.Burst < 1 {
		errs = append(errs, fmt.Sprintf("limits.burst must be positive (got %d)", cfg.Limits.Burst))
	}

	if cfg.Catalog.File != "" {
		if _, err := os.Stat(cfg.Catalog.File); err != nil {
			errs = append(errs, fmt.Sprintf("catalog.file: %v", err))
		}
	}

	if !isValidLogLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	if !isValidLogFormat(cfg.Logging.Format) {
		errs = append(errs, fmt.Sprintf("logging.format must be one of: json, text (got %q)", cfg.Logging.Format))
	}

	if cfg.Shutdown.Timeout.Duration < 0 {
		errs = append(errs, "shutdown.timeout must not be negative")
	}
	if cfg.Reload.Debounce.Duration < 0 {
		errs = append(errs, "reload.debounce must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidBackend(b string) bool {
	switch b {
	case "memory", "redis":
		return true
	}
	return false
}

func isValidLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidLogFormat(f string) bool {
	switch f {
	case "json", "text":
		return true
	}
	return false
}

func validProxySpec(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}
