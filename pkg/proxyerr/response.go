package proxyerr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// jsonError is the registry-side JSON error body. The Docker Registry v2
// spec defines an `errors` array; a single-element array is sufficient
// for every kind this proxy emits except NoUpstream, which WriteError
// answers with a flat {"error":"no upstream"} body instead.
type jsonError struct {
	Errors []jsonErrorDetail `json:"errors"`
}

type jsonErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a Kind to its HTTP status code.
func statusFor(kind Kind) int {
	switch kind {
	case KindNoUpstream:
		return http.StatusServiceUnavailable
	case KindAuthFailure:
		return http.StatusBadGateway
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		// UpstreamMidStream and ClientAbort are not written as fresh
		// responses — by the time they're detected, bytes may already be
		// on the wire. Failover only ever happens pre-first-byte.
		return http.StatusInternalServerError
	}
}

// code is the machine-readable error code embedded in the JSON body.
func code(kind Kind) string {
	switch kind {
	case KindNoUpstream:
		return "NO_UPSTREAM"
	case KindAuthFailure:
		return "AUTH_FAILURE"
	case KindUpstreamUnavailable:
		return "UPSTREAM_UNAVAILABLE"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindNotFound:
		return "NOT_FOUND"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// WriteError writes err as a registry-style JSON error response, choosing
// status and body from its Kind; a NoUpstream error gets the flat
// {"error":"no upstream"} body. Non-*Error values are treated as
// internal errors. Returns the status code written, for logging.
func WriteError(w http.ResponseWriter, err error) int {
	var pe *Error
	kind := Kind("")
	if errors.As(err, &pe) {
		kind = pe.Kind
	}

	status := statusFor(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if kind == KindNoUpstream {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no upstream"})
		return status
	}

	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	_ = json.NewEncoder(w).Encode(jsonError{
		Errors: []jsonErrorDetail{{Code: code(kind), Message: msg}},
	})
	return status
}
