// Package prober implements the health prober: a scheduled sweep
// that measures each enabled mirror's round-trip latency to its `/v2/`
// endpoint and feeds the result back into the mirror registry's
// circuit-breaker state.
package prober
