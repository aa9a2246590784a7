package tls

import (
	"crypto/tls"
	"fmt"
	"time"
)

// DefaultReloadInterval is how often certificate files are re-checked
// when no cert_reload_interval is configured.
const DefaultReloadInterval = 5 * time.Minute

// Config describes the listener's TLS material. TLS 1.0 and 1.1 are
// never offered; unknown or empty min_version means 1.3.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3" (the default).
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts the TLS 1.2 handshake to the named
	// suites. Empty means Go's defaults. TLS 1.3 suites are fixed by
	// crypto/tls and listed here only for completeness.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is a duration string such as "5m" or "1h".
	ReloadInterval string `yaml:"cert_reload_interval"`
}

// ToTLSConfig loads the configured key pair and returns a ready
// *tls.Config, or nil when TLS is disabled.
func (c *Config) ToTLSConfig() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, fmt.Errorf("cert_file and key_file are required when TLS is enabled")
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	if err := ValidateCertificate(&cert); err != nil {
		return nil, fmt.Errorf("certificate %s: %w", c.CertFile, err)
	}

	// #nosec G402 -- minVersion never resolves below TLS 1.2
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   c.minVersion(),
		CipherSuites: c.cipherSuites(),
	}, nil
}

func (c *Config) minVersion() uint16 {
	if c.MinVersion == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}

func (c *Config) cipherSuites() []uint16 {
	if len(c.CipherSuites) == 0 {
		return nil
	}
	var ids []uint16
	for _, name := range c.CipherSuites {
		if id, ok := cipherSuiteIDs[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ParseReloadInterval returns the configured reload interval, falling
// back to DefaultReloadInterval when unset or unparsable.
func (c *Config) ParseReloadInterval() time.Duration {
	d, err := time.ParseDuration(c.ReloadInterval)
	if err != nil || d <= 0 {
		return DefaultReloadInterval
	}
	return d
}

var cipherSuiteIDs = map[string]uint16{
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}
