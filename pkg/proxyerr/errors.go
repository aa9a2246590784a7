package proxyerr

import "fmt"

// Kind identifies which category of proxy error an error belongs to.
type Kind string

const (
	KindNoUpstream          Kind = "no_upstream"
	KindAuthFailure         Kind = "auth_failure"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamMidStream   Kind = "upstream_mid_stream"
	KindClientAbort         Kind = "client_abort"
	KindBadRequest          Kind = "bad_request"
	KindNotFound            Kind = "not_found"
	KindInternal            Kind = "internal"
	KindTimeout             Kind = "timeout"
)

// Error is a typed proxy error: every error the engine surfaces to a
// handler is one of these, never a bare fmt.Errorf.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by Kind so callers can use errors.Is(err, proxyerr.NoUpstream)
// style sentinels built via New below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels usable with errors.Is: New(kind, "", nil) has no message, so
// Error.Is above matches purely on Kind.
var (
	NoUpstream          = New(KindNoUpstream, "", nil)
	AuthFailure         = New(KindAuthFailure, "", nil)
	UpstreamUnavailable = New(KindUpstreamUnavailable, "", nil)
	UpstreamMidStream   = New(KindUpstreamMidStream, "", nil)
	ClientAbort         = New(KindClientAbort, "", nil)
	BadRequest          = New(KindBadRequest, "", nil)
	NotFound            = New(KindNotFound, "", nil)
	Internal            = New(KindInternal, "", nil)
	Timeout             = New(KindTimeout, "", nil)
)
