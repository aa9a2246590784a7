// Package mirror holds the in-memory catalog of upstream registries the
// proxy forwards to: their routing prefix, base URL, credentials, and the
// health/latency state the prober keeps current.
package mirror

import "time"

// AuthKind identifies how the proxy authenticates to a mirror's upstream.
type AuthKind string

const (
	// AuthNone means the upstream requires no credentials from the proxy.
	AuthNone AuthKind = "none"

	// AuthBasic means the proxy retries a 401 with HTTP Basic credentials
	// stored on the mirror.
	AuthBasic AuthKind = "basic"

	// AuthBearerDelegated means the proxy follows the standard registry
	// Bearer token handshake, optionally presenting basic credentials to
	// the token realm.
	AuthBearerDelegated AuthKind = "bearer-delegated"
)

// Health is the three-state health classification of a mirror.
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// DefaultPrefix is the routing key used when an incoming path does not
// match any configured mirror's prefix.
const DefaultPrefix = "dockerhub"

// Mirror is a single configured upstream registry.
type Mirror struct {
	// ID is a stable integer identity, assigned on creation.
	ID int64

	// Prefix is the short routing key (e.g. "dockerhub", "ghcr"). Unique
	// across the registry.
	Prefix string

	// UpstreamURL is the absolute base URL (scheme + host, no trailing
	// path) the proxy forwards requests to.
	UpstreamURL string

	// UpstreamHost is the Host header value the upstream expects; may
	// differ from UpstreamURL's host when the upstream sits behind a CDN.
	UpstreamHost string

	// AuthKind selects the authentication strategy for this mirror.
	AuthKind AuthKind

	// AuthUser and AuthPass hold basic-auth credentials. AuthPass is the
	// plaintext value in memory; at rest it is encrypted (see
	// pkg/security/secrets).
	AuthUser string
	AuthPass string

	// Enabled is the operator switch; a disabled mirror is never selected
	// regardless of health.
	Enabled bool

	// Health is the current three-state classification.
	Health Health

	// LatencyMS is the round-trip time of the last successful probe to
	// <UpstreamURL>/v2/, in milliseconds. Meaningless when Health is not
	// HealthHealthy.
	LatencyMS float64

	// ConsecutiveFailures counts sequential probe failures; reset to zero
	// on any successful probe.
	ConsecutiveFailures int

	// LastProbeAt is when the most recent probe (success or failure)
	// completed.
	LastProbeAt time.Time
}

// Clone returns a deep copy safe for a caller to mutate or hand to another
// goroutine without synchronization.
func (m Mirror) Clone() Mirror {
	return m
}

// Redacted returns a copy of the mirror with AuthPass cleared, suitable
// for serializing in the Admin API's list/read responses.
func (m Mirror) Redacted() Mirror {
	c := m.Clone()
	c.AuthPass = ""
	return c
}

// IsSelectable reports whether the mirror can be chosen by the selector
// under the default only_enabled_healthy=true policy. Only a confirmed
// HealthUnhealthy mirror is excluded — HealthUnknown (not yet probed)
// stays selectable, ranked last by latencyRank, so a freshly seeded
// mirror is usable before its first probe completes.
func (m Mirror) IsSelectable() bool {
	return m.Enabled && m.Health != HealthUnhealthy
}
