package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Custom keys live in the "relay.*" namespace so
// they cannot collide with OpenTelemetry semantic conventions.
const (
	AttrMirror     = "relay.mirror"
	AttrUpstream   = "relay.upstream"
	AttrRepository = "relay.repository"

	AttrRequestID = "relay.request_id"
	AttrClientIP  = "relay.client_ip"
	AttrMethod    = "relay.method"

	AttrTokenCached = "relay.token.cached"
	AttrTokenScope  = "relay.token.scope"

	AttrErrorType    = "relay.error.type"
	AttrErrorMessage = "error.message"

	AttrDuration   = "relay.duration_ms"
	AttrBytesOut   = "relay.bytes_out"
	AttrRetryCount = "relay.retry_count"
)

// SetMirrorAttributes tags span with the mirror prefix that served the
// request and the upstream registry it fronts.
func SetMirrorAttributes(span trace.Span, mirror, upstream string) {
	span.SetAttributes(
		attribute.String(AttrMirror, mirror),
		attribute.String(AttrUpstream, upstream),
	)
}

// SetRequestAttributes tags span with request correlation fields.
// Empty clientIP and method are omitted.
func SetRequestAttributes(span trace.Span, requestID, clientIP, method string) {
	attrs := []attribute.KeyValue{attribute.String(AttrRequestID, requestID)}
	if clientIP != "" {
		attrs = append(attrs, attribute.String(AttrClientIP, clientIP))
	}
	if method != "" {
		attrs = append(attrs, attribute.String(AttrMethod, method))
	}
	span.SetAttributes(attrs...)
}

// SetRepositoryAttribute tags span with the repository path being
// proxied, e.g. "library/nginx". Empty repositories are omitted.
func SetRepositoryAttribute(span trace.Span, repository string) {
	if repository != "" {
		span.SetAttributes(attribute.String(AttrRepository, repository))
	}
}

// SetTokenAttributes records whether the token broker answered from
// cache and which scope was requested.
func SetTokenAttributes(span trace.Span, cached bool, scope string) {
	span.SetAttributes(
		attribute.Bool(AttrTokenCached, cached),
		attribute.String(AttrTokenScope, scope),
	)
}

// SetErrorAttributes records err on span with a coarse errorType label,
// and marks the span status as failed. A nil err is a no-op.
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrErrorMessage, err.Error()),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetDurationAttribute records the operation's duration in milliseconds.
func SetDurationAttribute(span trace.Span, durationMs int64) {
	span.SetAttributes(attribute.Int64(AttrDuration, durationMs))
}

// SetBytesOutAttribute records how many body bytes reached the client.
func SetBytesOutAttribute(span trace.Span, bytesOut int64) {
	span.SetAttributes(attribute.Int64(AttrBytesOut, bytesOut))
}

// SetRetryAttribute records how many failover attempts preceded the
// mirror that finally answered.
func SetRetryAttribute(span trace.Span, retryCount int) {
	span.SetAttributes(attribute.Int(AttrRetryCount, retryCount))
}
