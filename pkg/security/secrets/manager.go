package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// secretRefPattern matches ${secret:name} references in config text.
var secretRefPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager chains secret providers with first-wins fallback and a
// shared TTL cache in front of them.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
}

// NewManager builds a manager; providers are consulted in the order
// given.
func NewManager(providers []SecretProvider, cacheConfig CacheConfig) *Manager {
	return &Manager{providers: providers, cache: NewCache(cacheConfig)}
}

// GetSecret resolves name through the cache, then through each
// provider that claims to support it. The first successful value is
// cached and returned.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, provider := range m.providers {
		if !provider.Supports(name) {
			continue
		}
		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			lastErr = err
			slog.Debug("secret provider miss",
				"provider", provider.Provider(),
				"name", obscureName(name),
				"error", err)
			continue
		}
		m.cache.Set(name, value)
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("resolve secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("no provider holds secret %q", name)
}

// ResolveReferences substitutes ${secret:name} references in input
// with their resolved values. Unresolvable references are left intact
// and reported together in the returned error.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var failures []string

	output := secretRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefPattern.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			return match
		}
		return value
	})

	if len(failures) > 0 {
		return output, fmt.Errorf("unresolved secret references: %s", strings.Join(failures, "; "))
	}
	return output, nil
}

// Refresh asks every refreshable provider to reload and drops the
// cache, so rotated secrets take effect on the next lookup.
func (m *Manager) Refresh(ctx context.Context) error {
	var failures []string
	for _, provider := range m.providers {
		refreshable, ok := provider.(RefreshableProvider)
		if !ok {
			continue
		}
		if err := refreshable.Refresh(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", provider.Provider(), err))
		}
	}
	m.cache.Clear()

	if len(failures) > 0 {
		return fmt.Errorf("refresh providers: %s", strings.Join(failures, "; "))
	}
	return nil
}

// ListSecrets unions the names all providers report. Providers that
// fail to list are skipped with a warning.
func (m *Manager) ListSecrets(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, provider := range m.providers {
		names, err := provider.ListSecrets(ctx)
		if err != nil {
			slog.Warn("provider failed to list secrets",
				"provider", provider.Provider(), "error", err)
			continue
		}
		for _, name := range names {
			seen[name] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out, nil
}

// obscureName keeps the ends of a secret name for log correlation
// without spelling the whole thing out.
func obscureName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
