package config

import "time"

// Config is the root configuration structure for the relay proxy.
// It contains all configuration sections for the proxy server, mirror
// registry, token broker, traffic accounting, storage, security, and
// telemetry.
type Config struct {
	// Proxy contains HTTP proxy server configuration including listen
	// address, timeouts, and connection limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// Mirrors is an optional seed list of upstream mirrors loaded on first
	// boot when the store is empty. The store is authoritative afterward;
	// edit mirrors through the Admin API, not this file.
	Mirrors []MirrorSeed `yaml:"mirrors"`

	// Probe contains health-prober configuration.
	Probe ProbeConfig `yaml:"probe"`

	// TokenCache contains token broker cache configuration.
	TokenCache TokenCacheConfig `yaml:"token_cache"`

	// Traffic contains traffic-accounting pipeline configuration.
	Traffic TrafficConfig `yaml:"traffic"`

	// Store contains persistent storage configuration.
	Store StoreConfig `yaml:"store"`

	// Admin contains Admin API configuration.
	Admin AdminConfig `yaml:"admin"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains security-related configuration including TLS and
	// credential-at-rest encryption.
	Security SecurityConfig `yaml:"security"`
}

// MirrorSeed is a single seed entry for the mirror registry, loaded only
// when the store has no mirrors yet.
type MirrorSeed struct {
	Prefix       string `yaml:"prefix"`
	UpstreamURL  string `yaml:"upstream_url"`
	UpstreamHost string `yaml:"upstream_host"`
	AuthKind     string `yaml:"auth_kind"` // "none", "basic", "bearer"
	AuthUser     string `yaml:"auth_user"`
	AuthPass     string `yaml:"auth_pass"`
}

// ProxyConfig contains configuration for the client-facing HTTP proxy server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the proxy to listen on.
	// Default: ":8000"
	ListenAddress string `yaml:"listen_address"`

	// ReadHeaderTimeout bounds how long the server waits for request
	// headers. Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout bounds keep-alive idle connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before forcing close.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes caps request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ConnectTimeout bounds the dial to an upstream mirror.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// UpstreamHeaderTimeout bounds waiting for upstream response headers.
	// Default: 10s
	UpstreamHeaderTimeout time.Duration `yaml:"upstream_header_timeout"`

	// StreamIdleTimeout is passed to the proxy engine's configuration and
	// stored there; the engine applies no idle deadline while a response
	// body is streaming to the client.
	// Default: 60s
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`

	// MaxRedirects is the maximum number of redirects the engine follows
	// for blob GETs.
	// Default: 5
	MaxRedirects int `yaml:"max_redirects"`

	// IdleConnsPerHost is the per-mirror HTTP client's idle connection pool
	// size. Default: 32
	IdleConnsPerHost int `yaml:"idle_conns_per_host"`

	// MaxConnsPerHost is the per-mirror HTTP client's max connection count.
	// Default: 256
	MaxConnsPerHost int `yaml:"max_conns_per_host"`

	// DefaultPrefix is the mirror prefix used when the incoming path's
	// first segment does not match a configured mirror.
	// Default: "dockerhub"
	DefaultPrefix string `yaml:"default_prefix"`
}

// ProbeConfig contains health-prober configuration.
type ProbeConfig struct {
	// Interval is the cadence between full probe sweeps.
	// Default: 3600s (60 minutes)
	Interval time.Duration `yaml:"interval"`

	// CronSchedule, if non-empty, overrides Interval with a cron expression
	// (github.com/robfig/cron/v3 syntax) for probe scheduling.
	CronSchedule string `yaml:"cron_schedule"`

	// Timeout bounds a single mirror's ping request.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Jitter is the maximum random delay added before each scheduled sweep,
	// to avoid a thundering herd of probes against shared upstreams.
	// Default: 2s
	Jitter time.Duration `yaml:"jitter"`

	// FailureThreshold is the number of consecutive failed probes before a
	// mirror opens its circuit breaker; a probe whose RTT is over
	// SlowThreshold counts as one failure.
	// Default: 1
	FailureThreshold int `yaml:"failure_threshold"`

	// SlowThreshold is the RTT above which a successful-but-slow probe is
	// treated as a failure for circuit-breaker purposes.
	// Default: 10s
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// TokenCacheConfig contains token broker cache configuration.
type TokenCacheConfig struct {
	// Capacity is the maximum number of cached bearer tokens (LRU eviction).
	// Default: 4096
	Capacity int `yaml:"capacity"`

	// SafetyMargin is subtracted from a token's expiry before it is
	// considered stale, so in-flight requests don't race an expiring token.
	// Default: 30s
	SafetyMargin time.Duration `yaml:"safety_margin"`

	// DefaultTTL is used when a realm's token response omits expires_in.
	// Default: 60s
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// RealmTimeout bounds the token-realm fetch request.
	// Default: 10s
	RealmTimeout time.Duration `yaml:"realm_timeout"`
}

// TrafficConfig contains traffic-accounting pipeline configuration.
type TrafficConfig struct {
	// QueueCapacity is the size of the bounded async record channel.
	// Default: 4096
	QueueCapacity int `yaml:"queue_capacity"`

	// BatchSize is the maximum number of records flushed to storage per
	// batch. Default: 100
	BatchSize int `yaml:"batch_size"`

	// BatchInterval is the maximum time a partial batch waits before being
	// flushed. Default: 1s
	BatchInterval time.Duration `yaml:"batch_interval"`

	// RetentionDays is the number of days traffic records are retained.
	// 0 disables pruning. Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for the retention pruner.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}

// StoreConfig contains persistent storage configuration.
type StoreConfig struct {
	// Backend selects the storage implementation.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path.
	// Default: "./data/relay.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging for better read/write concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a statement waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// PureGo selects the modernc.org/sqlite (cgo-free) driver instead of
	// mattn/go-sqlite3 when cgo is undesirable in the build environment.
	// Default: false
	PureGo bool `yaml:"pure_go"`
}

// AdminConfig contains Admin API configuration.
type AdminConfig struct {
	// BasePath is the path prefix the Admin API is mounted under.
	// Default: "/api"
	BasePath string `yaml:"base_path"`

	// DefaultHistoryLimit is used for GET /history when ?limit= is absent.
	// Default: 100
	DefaultHistoryLimit int `yaml:"default_history_limit"`

	// MaxHistoryLimit caps GET /history?limit=.
	// Default: 10000
	MaxHistoryLimit int `yaml:"max_history_limit"`

	// APIKeys, when non-empty, requires a matching "Authorization: Bearer <key>"
	// header on every Admin API request.
	APIKeys []string `yaml:"api_keys"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format: "json", "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables redaction of mirror credentials (Bearer tokens,
	// Basic auth headers, passwords) from log output.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics collector is built and the
	// /metrics endpoint is registered.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is defaulted and validated, but the server always mounts the
	// Prometheus metrics endpoint at "/metrics"; this field does not
	// change that path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "relay"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported via OTLP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// SampleRatio is the fraction of requests traced (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName identifies this process in traces.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is defaulted and validated, but the server always
	// serves the liveness probe at "/health"; this field does not change
	// that path.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is defaulted and validated, but the server always
	// serves the readiness probe at "/ready"; this field does not change
	// that path.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds individual component checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	TLS     TLSConfig     `yaml:"tls"`
	Secrets SecretsConfig `yaml:"secrets"`
}

// TLSConfig contains TLS configuration for the proxy server. TLS
// termination is normally left to a fronting layer; this exists for
// deployments without one.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecretsConfig configures credential-at-rest encryption for mirror basic
// auth passwords.
type SecretsConfig struct {
	// KeyProvider selects how the encryption key is obtained.
	// Options: "env" (read from an environment variable), "file" (read
	// from a file, optionally watched for rotation).
	// Default: "env"
	KeyProvider string `yaml:"key_provider"`

	// EnvVar is the environment variable holding a base64-encoded 32-byte
	// key, when KeyProvider is "env".
	// Default: "RELAY_CREDENTIAL_KEY"
	EnvVar string `yaml:"env_var"`

	// KeyFile is the path to a file holding a base64-encoded 32-byte key,
	// when KeyProvider is "file".
	KeyFile string `yaml:"key_file"`

	// WatchKeyFile enables fsnotify-based hot-reload of KeyFile.
	// Default: true
	WatchKeyFile bool `yaml:"watch_key_file"`
}
