package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"relaydock/relay/pkg/proxyerr"
)

// RecoveryMiddleware turns handler panics into a registry-style 500.
// The panic value and stack go to the log; the client only sees a
// generic internal error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					// Deliberate connection abort; let net/http tear the
					// connection down instead of writing a 500.
					panic(v)
				}
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", v,
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()))
				proxyerr.WriteError(w, proxyerr.New(proxyerr.KindInternal, "internal error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
