// Package tokenbroker implements the registry Bearer-token handshake:
// parsing a Www-Authenticate challenge, fetching a token from the issuing
// realm, and caching it per (mirror, scope) with bounded LRU eviction and
// single-flight so concurrent 401s for the same scope produce one realm
// fetch.
package tokenbroker
