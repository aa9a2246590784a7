package proxy

import (
	"strings"

	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/proxyerr"
)

// Operation identifies which Docker Registry v2 endpoint a request targets.
type Operation int

const (
	OpUnknown Operation = iota
	OpDiscovery
	OpCatalog
	OpTagsList
	OpManifest
	OpBlob
	OpBlobUpload
)

// Route is the result of parsing an incoming client path. It carries
// everything ServeHTTP needs to pick a mirror and build the forwarded
// request.
type Route struct {
	Operation Operation

	// Prefix is the mirror routing key the request resolved to — either a
	// matched first path segment or the configured default.
	Prefix string

	// Repository is the repository name with any Docker Hub "library/"
	// shortcut already applied, as it will be forwarded upstream.
	Repository string

	// Reference is the tag or digest for manifest operations, the
	// requested digest for blob operations, the upload session ID for
	// blob-upload paths that carry one, or empty otherwise.
	Reference string

	// UpstreamPath is the path to send to the chosen mirror, already
	// stripped of the routing prefix.
	UpstreamPath string

	// ImageRef is a human-readable repo[:ref] string for traffic logging.
	ImageRef string
}

// ParseRoute parses path into a Route,
// resolving the routing prefix against reg. defaultPrefix is used when no
// configured mirror's prefix matches the request's first segment.
//
// Returns a *proxyerr.Error of KindBadRequest for paths that are not valid
// registry requests.
func ParseRoute(path string, reg *mirror.Registry, defaultPrefix string) (Route, error) {
	path = normalizeLegacyPath(path)

	if path == "/v2/" || path == "/v2" {
		return Route{Operation: OpDiscovery}, nil
	}

	if !strings.HasPrefix(path, "/v2/") {
		return Route{}, badRequest("path does not start with /v2/")
	}
	rest := strings.TrimPrefix(path, "/v2/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return Route{Operation: OpDiscovery}, nil
	}

	segments := strings.Split(rest, "/")
	if segments[0] == "_catalog" {
		return Route{
			Operation:    OpCatalog,
			Prefix:       defaultPrefix,
			UpstreamPath: "/v2/_catalog",
		}, nil
	}

	prefix := defaultPrefix
	if _, ok := reg.GetByPrefix(segments[0]); ok {
		prefix = segments[0]
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return Route{}, badRequest("missing repository name")
	}

	name, op, ref := splitNameAndOperation(segments)
	if op == OpUnknown || len(name) == 0 {
		return Route{}, badRequest("unrecognized registry path: " + path)
	}

	if prefix == mirror.DefaultPrefix && len(name) == 1 {
		name = append([]string{"library"}, name...)
	}
	repository := strings.Join(name, "/")

	upstreamPath := buildUpstreamPath(repository, op, ref)

	imageRef := repository
	if ref != "" {
		if op == OpBlob {
			imageRef = repository + "@" + ref
		} else {
			imageRef = repository + ":" + ref
		}
	}

	return Route{
		Operation:    op,
		Prefix:       prefix,
		Repository:   repository,
		Reference:    ref,
		UpstreamPath: upstreamPath,
		ImageRef:     imageRef,
	}, nil
}

// splitNameAndOperation finds the rightmost registry-reserved segment
// ("tags", "manifests", "blobs") in segments and splits the repository
// name from the operation suffix. Repository names may themselves contain
// multiple path components (e.g. "org/app"), so the search runs from the
// end: the last reserved segment is always the operation marker, never
// part of the name.
func splitNameAndOperation(segments []string) (name []string, op Operation, ref string) {
	for i := len(segments) - 1; i >= 0; i-- {
		switch segments[i] {
		case "tags":
			if i+1 < len(segments) && segments[i+1] == "list" {
				return segments[:i], OpTagsList, ""
			}
		case "manifests":
			if i+1 < len(segments) {
				return segments[:i], OpManifest, segments[i+1]
			}
		case "blobs":
			if i+1 < len(segments) && segments[i+1] == "uploads" {
				uuid := ""
				if i+2 < len(segments) {
					uuid = strings.Join(segments[i+2:], "/")
				}
				return segments[:i], OpBlobUpload, uuid
			}
			if i+1 < len(segments) {
				return segments[:i], OpBlob, segments[i+1]
			}
		}
	}
	return nil, OpUnknown, ""
}

func buildUpstreamPath(repository string, op Operation, ref string) string {
	switch op {
	case OpTagsList:
		return "/v2/" + repository + "/tags/list"
	case OpManifest:
		return "/v2/" + repository + "/manifests/" + ref
	case OpBlob:
		return "/v2/" + repository + "/blobs/" + ref
	case OpBlobUpload:
		if ref == "" {
			return "/v2/" + repository + "/blobs/uploads/"
		}
		return "/v2/" + repository + "/blobs/uploads/" + ref
	default:
		return "/v2/" + repository
	}
}

// normalizeLegacyPath rewrites the compatibility shim "/<name>[:<tag>]"
// (no /v2/ prefix) into the equivalent manifest path. Kept narrow so it
// never shadows a genuine /v2/ request.
func normalizeLegacyPath(path string) string {
	if path == "" || strings.HasPrefix(path, "/v2") {
		return path
	}
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" || strings.Contains(trimmed, "/v2/") {
		return path
	}

	ref := "latest"
	name := trimmed
	if idx := strings.LastIndexByte(trimmed, ':'); idx >= 0 && !strings.Contains(trimmed[idx:], "/") {
		name = trimmed[:idx]
		ref = trimmed[idx+1:]
	}
	if name == "" {
		return path
	}
	return "/v2/" + name + "/manifests/" + ref
}

func badRequest(msg string) error {
	return proxyerr.New(proxyerr.KindBadRequest, msg, nil)
}
