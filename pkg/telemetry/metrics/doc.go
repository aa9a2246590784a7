// Package metrics exposes the proxy's Prometheus instrumentation.
//
// Collector is the single entry point: it registers request, mirror,
// and cache metric families on one registry and offers typed Record*
// methods so the proxy engine, health prober, and token broker never
// handle prometheus types themselves. All metrics live under the
// configured namespace (default "relay").
package metrics
