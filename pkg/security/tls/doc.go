// Package tls holds the listener-side TLS plumbing: Config maps the
// security.tls YAML block onto a crypto/tls.Config (TLS 1.2 minimum,
// named cipher suites for 1.2), CertificateReloader hot-swaps the
// serving certificate when the files rotate on disk, and the certs
// helpers back the relay certs inspection commands.
package tls
