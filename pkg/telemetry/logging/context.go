package logging

import "context"

type contextKey string

// Request-scoped fields the proxy threads through contexts. The key
// string doubles as the attribute name on emitted log lines.
const (
	RequestIDKey  contextKey = "request_id"
	MirrorIDKey   contextKey = "mirror_id"
	RepositoryKey contextKey = "repository"
	ClientIPKey   contextKey = "client_ip"
	TraceIDKey    contextKey = "trace_id"
	SpanIDKey     contextKey = "span_id"
)

// fieldKeys fixes the attribute ordering on emitted lines.
var fieldKeys = []contextKey{
	RequestIDKey, MirrorIDKey, RepositoryKey, ClientIPKey, TraceIDKey, SpanIDKey,
}

// WithField attaches one request-scoped field to ctx.
func WithField(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// Field reads one request-scoped field, or "" when absent.
func Field(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithRequestID tags ctx with the request's correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return WithField(ctx, RequestIDKey, id)
}

// WithMirrorID tags ctx with the mirror chosen for the request.
func WithMirrorID(ctx context.Context, id string) context.Context {
	return WithField(ctx, MirrorIDKey, id)
}

// WithRepository tags ctx with the repository being proxied, e.g.
// "library/nginx".
func WithRepository(ctx context.Context, repo string) context.Context {
	return WithField(ctx, RepositoryKey, repo)
}

// WithClientIP tags ctx with the originating client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return WithField(ctx, ClientIPKey, ip)
}

// ContextFields flattens the known request-scoped fields on ctx into
// alternating key/value pairs for Logger.With.
func ContextFields(ctx context.Context) []any {
	var fields []any
	for _, key := range fieldKeys {
		if v := Field(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
