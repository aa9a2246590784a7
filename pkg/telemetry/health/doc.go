// Package health implements the liveness and readiness probes served on
// GET /health and GET /ready.
//
// Liveness only proves the process is up and never runs component checks.
// Readiness runs every registered CheckFunc concurrently, each bounded by
// the checker's timeout; one failing component degrades the whole answer
// to 503 so an orchestrator stops routing new pulls at this instance.
//
// The serve command registers a check for the store; tests register their
// own fakes.
package health
