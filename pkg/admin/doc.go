// Package admin implements the Admin API: REST-style JSON endpoints for
// managing the mirror registry, triggering an out-of-band health sweep,
// and reading back traffic accounting.
package admin
