package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Where an API key may be presented on a request.
const (
	SourceHeader = "header"
	SourceQuery  = "query"
)

// APIKeySource names one place to look for a key: a header (optionally
// behind a scheme prefix like "Bearer") or a query parameter.
type APIKeySource struct {
	Type   string
	Name   string
	Scheme string
}

// APIKeyMiddleware rejects requests that do not carry a valid API key.
// Sources are tried in order; the first non-empty candidate wins.
type APIKeyMiddleware struct {
	validator *APIKeyValidator
	sources   []APIKeySource
}

// NewAPIKeyMiddleware builds the middleware around validator.
func NewAPIKeyMiddleware(validator *APIKeyValidator, sources []APIKeySource) *APIKeyMiddleware {
	return &APIKeyMiddleware{validator: validator, sources: sources}
}

// Handle wraps next with API key authentication. Authenticated
// requests carry the key's APIKeyInfo on their context.
func (m *APIKeyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := m.extractKey(r)
		if !ok {
			slog.Warn("admin request without api key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.unauthorized(w, "missing API key")
			return
		}

		info, err := m.validator.Validate(key)
		if err != nil {
			slog.Warn("admin request with rejected api key",
				"reason", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.unauthorized(w, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *APIKeyMiddleware) unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Www-Authenticate", `Bearer realm="admin"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

func (m *APIKeyMiddleware) extractKey(r *http.Request) (string, bool) {
	for _, src := range m.sources {
		var value string
		switch src.Type {
		case SourceHeader:
			value = r.Header.Get(src.Name)
			if value != "" && src.Scheme != "" {
				rest, found := strings.CutPrefix(value, src.Scheme+" ")
				if !found {
					continue
				}
				value = rest
			}
		case SourceQuery:
			value = r.URL.Query().Get(src.Name)
		}
		if value != "" {
			return value, true
		}
	}
	return "", false
}

type contextKey string

const apiKeyInfoKey contextKey = "api_key_info"

// GetAPIKeyInfo returns the authenticated key info stored by Handle.
func GetAPIKeyInfo(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyInfoKey).(*APIKeyInfo)
	return info, ok
}
