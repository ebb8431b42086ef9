// Package uuidtok provides the opaque, stringifiable, comparable transfer
// handle used throughout the daemon. Generation is backed by
// github.com/google/uuid, the same library goshare reaches for in
// internal/transfer/fileshare.go.
package uuidtok

import "github.com/google/uuid"

// UUID is an opaque per-transfer / per-Service identity token.
type UUID string

// New allocates a fresh, process-unique UUID.
func New() UUID {
	return UUID(uuid.New().String())
}

// Parse validates and wraps a wire-form UUID token. The wire protocol
// treats UUIDs as opaque strings, so parsing only rejects the empty token.
func Parse(s string) (UUID, error) {
	if s == "" {
		return "", errEmpty
	}
	return UUID(s), nil
}

func (u UUID) String() string { return string(u) }

// IsZero reports whether u is the zero-value UUID (never allocated).
func (u UUID) IsZero() bool { return u == "" }

type emptyUUIDError struct{}

func (emptyUUIDError) Error() string { return "uuidtok: empty UUID token" }

var errEmpty = emptyUUIDError{}
