// relay is a health-aware mirror proxy for Docker/OCI v2 container
// registries.
//
// It acts as a transparent registry endpoint, providing:
//   - Health-aware upstream selection across configured mirrors
//   - Bearer-token handshake brokering for authenticated upstreams
//   - Streaming pass-through of manifests and blobs with failover
//   - Traffic accounting and an Admin API for mirror management
//
// Usage:
//
//	# Start the proxy with default configuration
//	relay serve
//
//	# Start with a custom configuration file
//	relay serve --config /path/to/config.yaml
//
//	# Validate configuration without starting the proxy
//	relay serve --dry-run --config /path/to/config.yaml
//
//	# Show version information
//	relay version
//
//	# Generate a self-signed certificate for local TLS testing
//	relay certs generate --host localhost
//
// For complete documentation, see: https://github.com/relaydock/relay
package main

func main() {
	Execute()
}
