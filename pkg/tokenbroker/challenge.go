package tokenbroker

import "strings"

// ChallengeScheme identifies which auth scheme a Www-Authenticate header
// calls for.
type ChallengeScheme string

const (
	SchemeBearer ChallengeScheme = "Bearer"
	SchemeBasic  ChallengeScheme = "Basic"
)

// Challenge is a parsed Www-Authenticate header.
type Challenge struct {
	Scheme  ChallengeScheme
	Realm   string
	Service string
	Scope   string
}

// ParseChallenge parses a Www-Authenticate header value such as:
//
//	Bearer realm="https://auth.docker.io/token",service="registry.docker.io",scope="repository:library/nginx:pull"
//	Basic realm="harbor"
//
// Returns ErrNoChallenge if the header doesn't start with a recognized
// scheme.
func ParseChallenge(header string) (Challenge, error) {
	header = strings.TrimSpace(header)
	switch {
	case strings.HasPrefix(header, "Bearer "):
		return Challenge{
			Scheme:  SchemeBearer,
			Realm:   challengeParam(header, "realm"),
			Service: challengeParam(header, "service"),
			Scope:   challengeParam(header, "scope"),
		}, nil
	case strings.HasPrefix(header, "Basic"):
		return Challenge{Scheme: SchemeBasic, Realm: challengeParam(header, "realm")}, nil
	default:
		return Challenge{}, ErrNoChallenge
	}
}

// challengeParam extracts key="value" from a challenge header. Returns ""
// if the key is absent. Values are not expected to contain escaped quotes
// in registry challenges, so no unescaping is performed.
func challengeParam(header, key string) string {
	marker := key + "=\""
	idx := strings.Index(header, marker)
	if idx < 0 {
		return ""
	}
	rest := header[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
