// Package auth guards the Admin API with static API keys. Keys are
// configured at startup, presented as Bearer tokens (or any configured
// header/query source), and compared in constant time. The proxy data
// path is unauthenticated by design; only the control surface goes
// through this package.
package auth
