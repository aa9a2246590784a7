package tracing

import (
	"context"
	"net/http"

	"relaydock/relay/pkg/telemetry/logging"

	"go.opentelemetry.io/otel"
)

// HTTPMiddleware continues an incoming W3C trace context. It extracts
// traceparent/tracestate headers into the request context so spans
// opened downstream become children of the caller's trace, and stamps
// the trace and span ids onto the logging context so every log line of
// the request carries them. Without a registered propagator the
// middleware passes requests through untouched.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), headerCarrier(r.Header))

		if traceID := TraceID(ctx); traceID != "" {
			ctx = logging.WithField(ctx, logging.TraceIDKey, traceID)
			ctx = logging.WithField(ctx, logging.SpanIDKey, SpanID(ctx))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Inject writes the trace context carried by ctx into header, for
// requests this process makes on behalf of a traced client request.
func Inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(header))
}

// headerCarrier adapts http.Header to the propagation carrier
// interface without copying.
type headerCarrier http.Header

func (c headerCarrier) Get(key string) string { return http.Header(c).Get(key) }

func (c headerCarrier) Set(key, value string) { http.Header(c).Set(key, value) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
