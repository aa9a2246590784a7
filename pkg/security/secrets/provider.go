package secrets

import "context"

// SecretProvider resolves named secrets from one backend. Providers are
// chained by Manager, which asks Supports before attempting a lookup so
// a file-backed provider is not consulted for secrets it cannot hold.
type SecretProvider interface {
	// GetSecret returns the secret's value, or an error when the
	// backend has no such secret or cannot be reached.
	GetSecret(ctx context.Context, name string) (string, error)

	// ListSecrets returns the names this provider can currently
	// resolve. Values are never returned.
	ListSecrets(ctx context.Context) ([]string, error)

	// Provider names the backend ("env", "file").
	Provider() string

	// Supports reports whether this provider could resolve name.
	Supports(name string) bool
}

// RefreshableProvider is implemented by providers whose backing store
// can change underneath them, such as mounted secret directories.
type RefreshableProvider interface {
	SecretProvider

	// Refresh discards any cached state so subsequent lookups hit
	// the backend again.
	Refresh(ctx context.Context) error
}
