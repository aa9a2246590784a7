// Package tracing exports request spans over OTLP/gRPC and continues
// W3C trace contexts arriving on proxied requests.
//
// New builds the process-wide Tracer from config; when tracing is
// disabled it degrades to noop spans so instrumented call sites carry
// no conditional logic. HTTPMiddleware extracts traceparent headers on
// the way in and stamps trace/span ids onto the logging context;
// Inject forwards the context on requests made to upstream registries.
// The Set*Attribute helpers keep span attribute naming consistent
// under the "relay.*" namespace.
package tracing
