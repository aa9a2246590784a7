// Package proxy implements the client-facing reverse proxy for Docker
// Registry v2 traffic. It parses the incoming request path, resolves
// it to a configured mirror, performs the Bearer/Basic auth handshake on
// the client's behalf, streams the upstream response back untouched, and
// hands every attempt to the traffic recorder regardless of outcome.
//
// # Architecture
//
//   - pathgrammar.go: parses `/v2/...` paths into operation, repository,
//     and reference, applying prefix extraction and the Docker Hub
//     `library/` shortcut.
//   - client.go: a per-mirror pool of *http.Client, each with its own
//     pooled Transport so one slow mirror can't starve another's
//     connections.
//   - engine.go: ties path parsing, mirror selection, the token broker,
//     and the traffic recorder together behind a single ServeHTTP.
//   - middleware: cross-cutting concerns (request ID, logging, CORS,
//     recovery, Admin API timeouts) shared with the Admin API.
//
// # Request Flow
//
//  1. ParseRoute resolves the path to an operation and a mirror prefix.
//  2. The engine selects the best healthy mirror for that prefix and
//     forwards the request, Host rewritten, incoming Authorization
//     stripped.
//  3. A 401 triggers at most one retry: Basic credentials or a Bearer
//     token fetched through the token broker are attached and the
//     request is resent once.
//  4. Before any response bytes reach the client, a transport error or
//     5xx triggers failover to the next mirror for the same prefix.
//  5. Once streaming begins, the response is relayed byte-for-byte; a
//     mid-stream error closes the client connection rather than retrying.
//  6. The attempt — whichever mirror and status resulted — is recorded
//     asynchronously for traffic accounting.
//
// # Redirects
//
// Only blob GETs follow upstream redirects transparently (object-storage
// CDNs commonly 307 from manifest/blob storage); every other operation
// passes a 3xx straight through to the client.
//
// # Thread Safety
//
// Engine and its collaborators are safe for concurrent use by many
// goroutines, one per inbound connection.
package proxy
