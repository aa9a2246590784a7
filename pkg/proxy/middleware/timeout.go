package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"relaydock/relay/pkg/proxyerr"
)

// TimeoutMiddleware bounds a whole request with context.WithTimeout and
// answers 504 when it expires. Only the Admin API uses it: the proxy
// path applies phase-specific timeouts (connect, upstream header)
// instead and no idle deadline while streaming, because a blanket
// deadline would cut off
// legitimate multi-gigabyte blob transfers.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if ctx.Err() != context.DeadlineExceeded {
					return
				}
				slog.ErrorContext(r.Context(), "request timeout",
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"timeout", timeout.String())
				proxyerr.WriteError(w, proxyerr.New(proxyerr.KindTimeout, "request timeout: the request took too long to complete", nil))
			}
		})
	}
}
