package config

import "reflect"

// Change describes a single configuration field that differs between two configs.
type Change struct {
	Field      string      // dot-separated field path (e.g., "limits.per_ip")
	OldValue   interface{} // previous value
	NewValue   interface{} // new value
	Reloadable bool        // whether this change can be applied without restart
}

// Diff compares two Config values and returns a list of changes.
// Each change is annotated with whether it is reloadable at runtime.
func Diff(old, new *Config) []Change {
	var changes []Change

	// Non-reloadable: the listener and storage backend are fixed at startup.
	diffField(&changes, "listen.host", old.Listen.Host, new.Listen.Host, false)
	diffField(&changes, "listen.port", old.Listen.Port, new.Listen.Port, false)
	diffField(&changes, "listen.trusted_proxies", old.Listen.TrustedProxies, new.Listen.TrustedProxies, false)
	diffField(&changes, "external_url", old.ExternalURL, new.ExternalURL, false)
	diffField(&changes, "cors.allowed_origins", old.CORS.AllowedOrigins, new.CORS.AllowedOrigins, false)
	diffField(&changes, "storage.backend", old.Storage.Backend, new.Storage.Backend, false)
	diffField(&changes, "storage.redis.addr", old.Storage.Redis.Addr, new.Storage.Redis.Addr, false)
	diffField(&changes, "storage.redis.db", old.Storage.Redis.DB, new.Storage.Redis.DB, false)
	diffField(&changes, "shutdown.timeout", old.Shutdown.Timeout.Duration, new.Shutdown.Timeout.Duration, false)

	// Reloadable: guard limits, catalog file, logging.
	diffField(&changes, "limits.per_ip", old.Limits.PerIP, new.Limits.PerIP, true)
	diffField(&changes, "limits.burst", old.Limits.Burst, new.Limits.Burst, true)
	diffField(&changes, "limits.cleanup_interval", old.Limits.CleanupInterval.Duration, new.Limits.CleanupInterval.Duration, true)
	diffField(&changes, "catalog.file", old.Catalog.File, new.Catalog.File, true)
	diffField(&changes, "logging.level", old.Logging.Level, new.Logging.Level, true)
	diffField(&changes, "logging.format", old.Logging.Format, new.Logging.Format, true)

	return changes
}

// diffField appends a Change if old != new using reflect.DeepEqual for comparison.
func diffField(changes *[]Change, field string, oldVal, newVal interface{}, reloadable bool) {
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}
