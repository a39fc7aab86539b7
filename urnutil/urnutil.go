// Package urnutil handles the "urn:uuid:" identifiers that name every
// object in a package.
package urnutil

import (
	"strings"

	"github.com/google/uuid"
)

const prefix = "urn:uuid:"

// NewUUID returns a fresh random UUID without any prefix.
func NewUUID() string {
	return uuid.NewString()
}

// AddPrefix prepends "urn:uuid:" unless it is already present.
func AddPrefix(id string) string {
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

// TrimPrefix removes a leading "urn:uuid:" if present.
func TrimPrefix(id string) string {
	return strings.TrimPrefix(id, prefix)
}

// Equal compares two identifiers ignoring case, surrounding whitespace
// and the urn prefix. Some mastering tools write uppercase UUIDs.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Normalize lowercases and strips whitespace and the urn prefix.
func Normalize(id string) string {
	return TrimPrefix(strings.ToLower(strings.TrimSpace(id)))
}

// Valid reports whether id (with or without prefix) parses as a UUID.
func Valid(id string) bool {
	_, err := uuid.Parse(TrimPrefix(strings.TrimSpace(id)))
	return err == nil
}
