// Package proxyerr implements the registry proxy's error taxonomy: a
// fixed set of typed errors, each mapped to exactly one client-facing
// HTTP outcome, plus a WriteError helper the proxy engine and Admin API
// call at their single point of response-error translation.
package proxyerr
