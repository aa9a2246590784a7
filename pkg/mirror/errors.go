package mirror

import (
	"errors"
	"fmt"
)

// Sentinel errors that can be checked with errors.Is().
var (
	// ErrNotFound is returned when a lookup by ID finds nothing.
	ErrNotFound = errors.New("mirror not found")

	// ErrDuplicatePrefix is returned when creating or renaming a mirror
	// would collide with an existing mirror's prefix.
	ErrDuplicatePrefix = errors.New("mirror prefix already in use")

	// ErrNoUpstream is returned by the selector when no enabled/healthy
	// mirror exists for a prefix.
	ErrNoUpstream = errors.New("no upstream available for prefix")
)

// NotFoundError carries the ID that was looked up.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mirror %d not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DuplicatePrefixError carries the offending prefix and the ID already
// holding it (0 if this is a brand-new create, not a rename collision).
type DuplicatePrefixError struct {
	Prefix     string
	ExistingID int64
}

func (e *DuplicatePrefixError) Error() string {
	return fmt.Sprintf("prefix %q already used by mirror %d", e.Prefix, e.ExistingID)
}

func (e *DuplicatePrefixError) Is(target error) bool {
	return target == ErrDuplicatePrefix
}

// NoUpstreamError carries the prefix that had no selectable mirror.
type NoUpstreamError struct {
	Prefix string
}

func (e *NoUpstreamError) Error() string {
	return fmt.Sprintf("no upstream available for prefix %q", e.Prefix)
}

func (e *NoUpstreamError) Is(target error) bool {
	return target == ErrNoUpstream
}
