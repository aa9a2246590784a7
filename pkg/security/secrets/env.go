package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves secrets from environment variables. The secret
// name "harbor-pull-password" maps to the variable
// "<prefix>HARBOR_PULL_PASSWORD".
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider builds a provider that reads variables under prefix.
// An empty prefix reads the environment unqualified, which is how the
// credential-key lookup uses it.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the variable mapped from name. Unset and empty
// variables are both treated as absent.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.envName(name)
	if value := os.Getenv(envVar); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %q not set (looked at $%s)", name, envVar)
}

// ListSecrets scans the environment for variables under the prefix and
// returns their secret-style names.
func (p *EnvProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var names []string
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, p.Prefix) {
			continue
		}
		names = append(names, p.secretName(key))
	}
	return names, nil
}

// Provider returns "env".
func (p *EnvProvider) Provider() string { return "env" }

// Supports always reports true; the environment is the fallback of
// last resort in a provider chain.
func (p *EnvProvider) Supports(name string) bool { return true }

func (p *EnvProvider) envName(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (p *EnvProvider) secretName(envVar string) string {
	trimmed := strings.TrimPrefix(envVar, p.Prefix)
	return strings.ToLower(strings.ReplaceAll(trimmed, "_", "-"))
}
