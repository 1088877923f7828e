// Package key provides project API key value types and pure validation
// functions. Keys are shown once at creation; only a hash is stored.
package key

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultPrefix starts every raw project key.
const DefaultPrefix = "pk_"

// LookupLen is the number of leading characters stored in clear for lookup.
const LookupLen = 12

// Key is a project ingestion key (immutable value type).
type Key struct {
	ID        string
	ProjectID string
	Name      string
	Prefix    string // First LookupLen chars of the raw key
	Hash      []byte
	CreatedAt time.Time
	RevokedAt *time.Time
	LastUsed  *time.Time
}

// Reasons for validation failure.
const (
	ReasonNotFound  = "key_not_found"
	ReasonRevoked   = "key_revoked"
	ReasonBadFormat = "invalid_format"
)

// ValidationResult is the outcome of validating a presented key.
type ValidationResult struct {
	Valid  bool
	Key    Key
	Reason string
}

// Generate returns a new raw key: prefix followed by 64 hex characters.
func Generate(prefix string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

// LookupPrefix returns the stored lookup prefix of a raw key.
func LookupPrefix(raw string) string {
	if len(raw) < LookupLen {
		return raw
	}
	return raw[:LookupLen]
}

// ValidateFormat checks the shape of a raw key and returns its lookup prefix.
// This is a PURE function.
func ValidateFormat(raw, expectedPrefix string) (string, bool) {
	if !strings.HasPrefix(raw, expectedPrefix) {
		return "", false
	}
	if len(raw) < len(expectedPrefix)+64 {
		return "", false
	}
	return LookupPrefix(raw), true
}

// Validate checks a stored key at now.
// This is a PURE function.
func Validate(k Key, now time.Time) ValidationResult {
	if k.RevokedAt != nil && !now.Before(*k.RevokedAt) {
		return ValidationResult{Reason: ReasonRevoked}
	}
	return ValidationResult{Valid: true, Key: k}
}
