// Package middleware holds the HTTP middleware shared by every surface
// the server exposes (proxy path, Admin API, health, metrics): request
// ID stamping, structured request logging, panic recovery, and the
// Admin-API-only timeout and CORS layers. Handlers read the request ID
// and start time back out of the context via GetRequestID and
// GetStartTime.
package middleware
