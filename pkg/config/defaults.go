package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress         = ":8000"
	DefaultReadHeaderTimeout     = 10 * time.Second
	DefaultIdleTimeout           = 120 * time.Second
	DefaultShutdownTimeout       = 30 * time.Second
	DefaultMaxHeaderBytes        = 1048576 // 1MB
	DefaultConnectTimeout        = 5 * time.Second
	DefaultUpstreamHeaderTimeout = 10 * time.Second
	DefaultStreamIdleTimeout     = 60 * time.Second
	DefaultMaxRedirects          = 5
	DefaultIdleConnsPerHost      = 32
	DefaultMaxConnsPerHost       = 256
	DefaultMirrorPrefix          = "dockerhub"

	// Probe defaults
	DefaultProbeInterval   = 60 * time.Minute
	DefaultProbeTimeout    = 10 * time.Second
	DefaultProbeJitter     = 2 * time.Second
	DefaultFailureThresh   = 1
	DefaultSlowThreshold   = 10 * time.Second

	// Token cache defaults
	DefaultTokenCacheCapacity = 4096
	DefaultSafetyMargin       = 30 * time.Second
	DefaultTokenTTL           = 60 * time.Second
	DefaultRealmTimeout       = 10 * time.Second

	// Traffic pipeline defaults
	DefaultQueueCapacity = 4096
	DefaultBatchSize     = 100
	DefaultBatchInterval = 1 * time.Second
	DefaultRetentionDays = 30
	DefaultPruneSchedule = "0 3 * * *"

	// Store defaults
	DefaultStoreBackend = "sqlite"
	DefaultStorePath    = "./data/relay.db"
	DefaultMaxOpenConns = 10
	DefaultMaxIdleConns = 5
	DefaultBusyTimeout  = 5 * time.Second

	// Admin API defaults
	DefaultAdminBasePath        = "/api"
	DefaultAdminHistoryLimit    = 100
	DefaultAdminMaxHistoryLimit = 10000

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsEnabled      = false
	DefaultMetricsPath         = "/metrics"
	DefaultMetricsNamespace    = "relay"
	DefaultTracingEnabled      = false
	DefaultTracingSamplingRate = 0.1
	DefaultServiceName         = "relay"
	DefaultLivenessPath        = "/health"
	DefaultReadinessPath       = "/ready"
	DefaultCheckTimeout        = 5 * time.Second

	// Security defaults
	DefaultTLSEnabled     = false
	DefaultSecretsKeyVar  = "RELAY_CREDENTIAL_KEY"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyProxyDefaults(cfg)
	applyProbeDefaults(cfg)
	applyTokenCacheDefaults(cfg)
	applyTrafficDefaults(cfg)
	applyStoreDefaults(cfg)
	applyAdminDefaults(cfg)
	applyTelemetryDefaults(cfg)
	applySecurityDefaults(cfg)
}

func applyProxyDefaults(cfg *Config) {
	p := &cfg.Proxy
	if p.ListenAddress == "" {
		p.ListenAddress = DefaultListenAddress
	}
	if p.ReadHeaderTimeout == 0 {
		p.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if p.IdleTimeout == 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = DefaultShutdownTimeout
	}
	if p.MaxHeaderBytes == 0 {
		p.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	if p.UpstreamHeaderTimeout == 0 {
		p.UpstreamHeaderTimeout = DefaultUpstreamHeaderTimeout
	}
	if p.StreamIdleTimeout == 0 {
		p.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	if p.MaxRedirects == 0 {
		p.MaxRedirects = DefaultMaxRedirects
	}
	if p.IdleConnsPerHost == 0 {
		p.IdleConnsPerHost = DefaultIdleConnsPerHost
	}
	if p.MaxConnsPerHost == 0 {
		p.MaxConnsPerHost = DefaultMaxConnsPerHost
	}
	if p.DefaultPrefix == "" {
		p.DefaultPrefix = DefaultMirrorPrefix
	}
}

func applyProbeDefaults(cfg *Config) {
	p := &cfg.Probe
	if p.Interval == 0 {
		p.Interval = DefaultProbeInterval
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultProbeTimeout
	}
	if p.Jitter == 0 {
		p.Jitter = DefaultProbeJitter
	}
	if p.FailureThreshold == 0 {
		p.FailureThreshold = DefaultFailureThresh
	}
	if p.SlowThreshold == 0 {
		p.SlowThreshold = DefaultSlowThreshold
	}
}

func applyTokenCacheDefaults(cfg *Config) {
	t := &cfg.TokenCache
	if t.Capacity == 0 {
		t.Capacity = DefaultTokenCacheCapacity
	}
	if t.SafetyMargin == 0 {
		t.SafetyMargin = DefaultSafetyMargin
	}
	if t.DefaultTTL == 0 {
		t.DefaultTTL = DefaultTokenTTL
	}
	if t.RealmTimeout == 0 {
		t.RealmTimeout = DefaultRealmTimeout
	}
}

func applyTrafficDefaults(cfg *Config) {
	t := &cfg.Traffic
	if t.QueueCapacity == 0 {
		t.QueueCapacity = DefaultQueueCapacity
	}
	if t.BatchSize == 0 {
		t.BatchSize = DefaultBatchSize
	}
	if t.BatchInterval == 0 {
		t.BatchInterval = DefaultBatchInterval
	}
	if t.RetentionDays == 0 {
		t.RetentionDays = DefaultRetentionDays
	}
	if t.PruneSchedule == "" {
		t.PruneSchedule = DefaultPruneSchedule
	}
}

func applyStoreDefaults(cfg *Config) {
	s := &cfg.Store
	if s.Backend == "" {
		s.Backend = DefaultStoreBackend
	}
	if s.Path == "" {
		s.Path = DefaultStorePath
	}
	if s.MaxOpenConns == 0 {
		s.MaxOpenConns = DefaultMaxOpenConns
	}
	if s.MaxIdleConns == 0 {
		s.MaxIdleConns = DefaultMaxIdleConns
	}
	if s.BusyTimeout == 0 {
		s.BusyTimeout = DefaultBusyTimeout
	}
	// WALMode's zero value (false) can't be told apart from "explicitly
	// disabled"; it is turned on whenever the backend is sqlite.
	if !s.WALMode && s.Backend == DefaultStoreBackend {
		s.WALMode = true
	}
}

func applyAdminDefaults(cfg *Config) {
	a := &cfg.Admin
	if a.BasePath == "" {
		a.BasePath = DefaultAdminBasePath
	}
	if a.DefaultHistoryLimit == 0 {
		a.DefaultHistoryLimit = DefaultAdminHistoryLimit
	}
	if a.MaxHistoryLimit == 0 {
		a.MaxHistoryLimit = DefaultAdminMaxHistoryLimit
	}
}

func applyTelemetryDefaults(cfg *Config) {
	t := &cfg.Telemetry
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	// RedactPII's zero value (false) can't be told apart from "explicitly
	// disabled", same ambiguity as Store.WALMode above; default it on
	// since an operator who wants raw credentials in logs should have to
	// opt out explicitly.
	if !t.Logging.RedactPII {
		t.Logging.RedactPII = true
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultServiceName
	}
	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultCheckTimeout
	}
}

func applySecurityDefaults(cfg *Config) {
	s := &cfg.Security
	if s.Secrets.KeyProvider == "" {
		s.Secrets.KeyProvider = "env"
	}
	if s.Secrets.EnvVar == "" {
		s.Secrets.EnvVar = DefaultSecretsKeyVar
	}
	if s.Secrets.KeyProvider == "file" {
		s.Secrets.WatchKeyFile = true
	}
}
