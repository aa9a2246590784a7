package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateMirrorSeeds(cfg.Mirrors)...)
	errs = append(errs, validateProbe(&cfg.Probe)...)
	errs = append(errs, validateTokenCache(&cfg.TokenCache)...)
	errs = append(errs, validateTraffic(&cfg.Traffic)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateAdmin(&cfg.Admin)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "proxy.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadHeaderTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.read_header_timeout", Message: "must be non-negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.idle_timeout", Message: "must be non-negative"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "proxy.max_header_bytes", Message: "must be non-negative"})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{Field: "proxy.max_header_bytes", Message: "exceeds reasonable limit (10MB)"})
	}
	if cfg.MaxRedirects < 0 {
		errs = append(errs, FieldError{Field: "proxy.max_redirects", Message: "must be non-negative"})
	}
	if cfg.DefaultPrefix == "" {
		errs = append(errs, FieldError{Field: "proxy.default_prefix", Message: "default prefix is required"})
	}

	return errs
}

func validateMirrorSeeds(mirrors []MirrorSeed) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(mirrors))

	for i, m := range mirrors {
		prefix := fmt.Sprintf("mirrors[%d]", i)

		if m.Prefix == "" {
			errs = append(errs, FieldError{Field: prefix + ".prefix", Message: "prefix is required"})
		} else if seen[m.Prefix] {
			errs = append(errs, FieldError{Field: prefix + ".prefix", Message: fmt.Sprintf("duplicate prefix %q", m.Prefix)})
		} else {
			seen[m.Prefix] = true
		}

		if m.UpstreamURL == "" {
			errs = append(errs, FieldError{Field: prefix + ".upstream_url", Message: "upstream_url is required"})
		} else if _, err := url.Parse(m.UpstreamURL); err != nil {
			errs = append(errs, FieldError{Field: prefix + ".upstream_url", Message: fmt.Sprintf("invalid URL: %v", err)})
		}

		switch m.AuthKind {
		case "", "none", "basic", "bearer":
		default:
			errs = append(errs, FieldError{Field: prefix + ".auth_kind", Message: fmt.Sprintf("invalid auth_kind %q: must be 'none', 'basic', or 'bearer'", m.AuthKind)})
		}
		if m.AuthKind == "basic" && m.AuthUser == "" {
			errs = append(errs, FieldError{Field: prefix + ".auth_user", Message: "auth_user is required when auth_kind is 'basic'"})
		}
	}

	return errs
}

func validateProbe(cfg *ProbeConfig) []FieldError {
	var errs []FieldError

	if cfg.Interval < 0 {
		errs = append(errs, FieldError{Field: "probe.interval", Message: "must be non-negative"})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "probe.timeout", Message: "must be positive"})
	}
	if cfg.FailureThreshold < 1 {
		errs = append(errs, FieldError{Field: "probe.failure_threshold", Message: "must be at least 1"})
	}
	if cfg.SlowThreshold <= 0 {
		errs = append(errs, FieldError{Field: "probe.slow_threshold", Message: "must be positive"})
	}

	return errs
}

func validateTokenCache(cfg *TokenCacheConfig) []FieldError {
	var errs []FieldError

	if cfg.Capacity < 1 {
		errs = append(errs, FieldError{Field: "token_cache.capacity", Message: "must be at least 1"})
	}
	if cfg.SafetyMargin < 0 {
		errs = append(errs, FieldError{Field: "token_cache.safety_margin", Message: "must be non-negative"})
	}
	if cfg.DefaultTTL <= 0 {
		errs = append(errs, FieldError{Field: "token_cache.default_ttl", Message: "must be positive"})
	}

	return errs
}

func validateTraffic(cfg *TrafficConfig) []FieldError {
	var errs []FieldError

	if cfg.QueueCapacity < 1 {
		errs = append(errs, FieldError{Field: "traffic.queue_capacity", Message: "must be at least 1"})
	}
	if cfg.BatchSize < 1 {
		errs = append(errs, FieldError{Field: "traffic.batch_size", Message: "must be at least 1"})
	}
	if cfg.BatchInterval <= 0 {
		errs = append(errs, FieldError{Field: "traffic.batch_interval", Message: "must be positive"})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "traffic.retention_days", Message: "must be non-negative"})
	}
	if cfg.RetentionDays > 3650 {
		errs = append(errs, FieldError{Field: "traffic.retention_days", Message: "exceeds reasonable limit (3650 days)"})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if cfg.Backend == "" {
		errs = append(errs, FieldError{Field: "store.backend", Message: "backend is required"})
	} else if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{Field: "store.backend", Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend)})
	}
	if cfg.Backend == "sqlite" && cfg.Path == "" {
		errs = append(errs, FieldError{Field: "store.path", Message: "path is required when backend is 'sqlite'"})
	}
	if cfg.MaxOpenConns < 0 {
		errs = append(errs, FieldError{Field: "store.max_open_conns", Message: "must be non-negative"})
	}

	return errs
}

func validateAdmin(cfg *AdminConfig) []FieldError {
	var errs []FieldError

	if cfg.BasePath == "" {
		errs = append(errs, FieldError{Field: "admin.base_path", Message: "base path is required"})
	}
	if cfg.DefaultHistoryLimit < 0 {
		errs = append(errs, FieldError{Field: "admin.default_history_limit", Message: "must be non-negative"})
	}
	if cfg.MaxHistoryLimit > 0 && cfg.DefaultHistoryLimit > cfg.MaxHistoryLimit {
		errs = append(errs, FieldError{Field: "admin.default_history_limit", Message: "cannot exceed max_history_limit"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: "logging level is required"})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("invalid logging level %q", cfg.Logging.Level)})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: "logging format is required"})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("invalid logging format %q", cfg.Logging.Format)})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path is required when metrics are enabled"})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "tracing endpoint is required when tracing is enabled"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0.0 and 1.0"})
	}

	if cfg.Health.LivenessPath != "" && cfg.Health.LivenessPath[0] != '/' {
		errs = append(errs, FieldError{Field: "telemetry.health.liveness_path", Message: "must start with /"})
	}
	if cfg.Health.ReadinessPath != "" && cfg.Health.ReadinessPath[0] != '/' {
		errs = append(errs, FieldError{Field: "telemetry.health.readiness_path", Message: "must start with /"})
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "security.tls.cert_file", Message: "required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "security.tls.key_file", Message: "required when TLS is enabled"})
		}
	}

	validProviders := map[string]bool{"env": true, "file": true}
	if cfg.Secrets.KeyProvider != "" && !validProviders[cfg.Secrets.KeyProvider] {
		errs = append(errs, FieldError{Field: "security.secrets.key_provider", Message: fmt.Sprintf("invalid key_provider %q: must be 'env' or 'file'", cfg.Secrets.KeyProvider)})
	}
	if cfg.Secrets.KeyProvider == "env" && cfg.Secrets.EnvVar == "" {
		errs = append(errs, FieldError{Field: "security.secrets.env_var", Message: "required when key_provider is 'env'"})
	}
	if cfg.Secrets.KeyProvider == "file" && cfg.Secrets.KeyFile == "" {
		errs = append(errs, FieldError{Field: "security.secrets.key_file", Message: "required when key_provider is 'file'"})
	}

	return errs
}
