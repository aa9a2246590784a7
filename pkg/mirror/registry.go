package mirror

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Registry is the authoritative in-memory set of mirrors. It is seeded
// from the store at startup; Admin API mutations are applied to it in
// place and then persisted to the store.
//
// Single-writer rule: only the health prober mutates health fields (via
// UpdateHealth/RecordFailure); only the Admin API mutates configuration
// fields (via Create/Update/Delete/Toggle). Reads never block on other
// reads.
type Registry struct {
	mu      sync.RWMutex
	mirrors map[int64]*Mirror
	nextID  int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		mirrors: make(map[int64]*Mirror),
	}
}

// Seed replaces the registry's contents with the given mirrors, assigning
// IDs to any that don't already have one. Used at startup to load the
// store snapshot (and config-file seed mirrors on first boot).
func (r *Registry) Seed(mirrors []Mirror) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mirrors = make(map[int64]*Mirror, len(mirrors))
	var maxID int64
	for i := range mirrors {
		m := mirrors[i]
		if m.ID == 0 {
			r.nextID++
			m.ID = r.nextID
		}
		if m.Health == "" {
			m.Health = HealthUnknown
		}
		mc := m
		r.mirrors[m.ID] = &mc
		if m.ID > maxID {
			maxID = m.ID
		}
	}
	if maxID > r.nextID {
		r.nextID = maxID
	}
}

// Create adds a new mirror, assigning it the next ID. Returns
// DuplicatePrefixError if the prefix is already in use.
func (r *Registry) Create(m Mirror) (Mirror, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.mirrors {
		if existing.Prefix == m.Prefix {
			return Mirror{}, &DuplicatePrefixError{Prefix: m.Prefix, ExistingID: existing.ID}
		}
	}

	r.nextID++
	m.ID = r.nextID
	if m.Health == "" {
		m.Health = HealthUnknown
	}
	mc := m
	r.mirrors[m.ID] = &mc

	slog.Info("mirror created", "id", m.ID, "prefix", m.Prefix)
	return mc, nil
}

// GetByPrefix returns the mirror configured for the given prefix, and
// whether one was found.
func (r *Registry) GetByPrefix(prefix string) (Mirror, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.mirrors {
		if m.Prefix == prefix {
			return m.Clone(), true
		}
	}
	return Mirror{}, false
}

// GetByID returns the mirror with the given ID.
func (r *Registry) GetByID(id int64) (Mirror, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mirrors[id]
	if !ok {
		return Mirror{}, &NotFoundError{ID: id}
	}
	return m.Clone(), nil
}

// ListByPrefix returns the mirrors configured for prefix, ordered
// ascending by LatencyMS (mirrors with HealthUnknown sort last). When
// onlyEnabledHealthy is true, disabled and unhealthy mirrors are
// excluded entirely.
func (r *Registry) ListByPrefix(prefix string, onlyEnabledHealthy bool) []Mirror {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Mirror
	for _, m := range r.mirrors {
		if m.Prefix != prefix {
			continue
		}
		if onlyEnabledHealthy && !m.IsSelectable() {
			continue
		}
		matched = append(matched, m.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		li, lj := latencyRank(matched[i]), latencyRank(matched[j])
		if li != lj {
			return li < lj
		}
		return matched[i].ID < matched[j].ID
	})

	return matched
}

// latencyRank maps a mirror's latency to a sortable float, pushing
// unknown-health mirrors to the end regardless of any stale latency
// value they carry.
func latencyRank(m Mirror) float64 {
	if m.Health != HealthHealthy {
		return math.Inf(1)
	}
	return m.LatencyMS
}

// List returns every mirror in the registry, in no particular order.
func (r *Registry) List() []Mirror {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Mirror, 0, len(r.mirrors))
	for _, m := range r.mirrors {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update applies a full Mirror replacement to an existing entry,
// preserving health fields (only the prober may change those). Returns
// NotFoundError if id doesn't exist, DuplicatePrefixError if the new
// prefix collides with a different mirror.
func (r *Registry) Update(id int64, m Mirror) (Mirror, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.mirrors[id]
	if !ok {
		return Mirror{}, &NotFoundError{ID: id}
	}

	for otherID, other := range r.mirrors {
		if otherID != id && other.Prefix == m.Prefix {
			return Mirror{}, &DuplicatePrefixError{Prefix: m.Prefix, ExistingID: otherID}
		}
	}

	updated := *existing
	updated.Prefix = m.Prefix
	updated.UpstreamURL = m.UpstreamURL
	updated.UpstreamHost = m.UpstreamHost
	updated.AuthKind = m.AuthKind
	updated.AuthUser = m.AuthUser
	updated.AuthPass = m.AuthPass
	updated.Enabled = m.Enabled

	r.mirrors[id] = &updated
	slog.Info("mirror updated", "id", id, "prefix", updated.Prefix)
	return updated.Clone(), nil
}

// Toggle flips the Enabled flag and returns the updated mirror.
func (r *Registry) Toggle(id int64) (Mirror, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mirrors[id]
	if !ok {
		return Mirror{}, &NotFoundError{ID: id}
	}
	m.Enabled = !m.Enabled
	slog.Info("mirror toggled", "id", id, "enabled", m.Enabled)
	return m.Clone(), nil
}

// Delete removes a mirror from the registry.
func (r *Registry) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mirrors[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(r.mirrors, id)
	slog.Info("mirror deleted", "id", id)
	return nil
}

// UpdateHealth records a successful probe: clears the failure counter,
// marks the mirror healthy, and stores the observed latency. Only the
// health prober should call this.
func (r *Registry) UpdateHealth(id int64, latencyMS float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mirrors[id]
	if !ok {
		return &NotFoundError{ID: id}
	}

	wasUnhealthy := m.Health != HealthHealthy
	m.Health = HealthHealthy
	m.LatencyMS = latencyMS
	m.ConsecutiveFailures = 0
	m.LastProbeAt = at

	if wasUnhealthy {
		slog.Info("mirror recovered", "id", id, "prefix", m.Prefix, "latency_ms", latencyMS)
	}
	return nil
}

// RecordFailure increments the consecutive-failure counter and, once it
// reaches failureThreshold, marks the mirror unhealthy (circuit open).
// Only the health prober should call this.
func (r *Registry) RecordFailure(id int64, failureThreshold int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mirrors[id]
	if !ok {
		return &NotFoundError{ID: id}
	}

	m.ConsecutiveFailures++
	m.LastProbeAt = at

	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if m.ConsecutiveFailures >= failureThreshold && m.Health != HealthUnhealthy {
		m.Health = HealthUnhealthy
		slog.Warn("mirror marked unhealthy",
			"id", id,
			"prefix", m.Prefix,
			"consecutive_failures", m.ConsecutiveFailures,
		)
	}
	return nil
}

// Snapshot returns the full set of mirrors as a map keyed by ID, for
// components (e.g. the proxy engine's per-mirror HTTP client pool) that
// need to react to registry changes.
func (r *Registry) Snapshot() map[int64]Mirror {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64]Mirror, len(r.mirrors))
	for id, m := range r.mirrors {
		out[id] = m.Clone()
	}
	return out
}
