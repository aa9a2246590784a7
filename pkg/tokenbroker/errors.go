package tokenbroker

import (
	"errors"
	"fmt"
)

// ErrAuthFailure is the sentinel matched by errors.Is() for any failure to
// obtain a token from a realm: network error, non-2xx response, or a
// malformed token body. The proxy engine surfaces all of these as a 502.
var ErrAuthFailure = errors.New("token realm request failed")

// AuthFailureError carries the realm URL and the underlying cause.
type AuthFailureError struct {
	Realm string
	Cause error
}

func (e *AuthFailureError) Error() string {
	return fmt.Sprintf("token fetch from realm %q failed: %v", e.Realm, e.Cause)
}

func (e *AuthFailureError) Unwrap() error {
	return e.Cause
}

func (e *AuthFailureError) Is(target error) bool {
	return target == ErrAuthFailure
}

// ErrNoChallenge is returned when ParseChallenge is given a header that
// isn't a Bearer or Basic Www-Authenticate challenge.
var ErrNoChallenge = errors.New("no recognizable Www-Authenticate challenge")
