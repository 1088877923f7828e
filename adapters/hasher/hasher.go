// Package hasher provides API key hashing implementations.
package hasher

import (
	"crypto/subtle"

	"github.com/artpar/pulse/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes project keys with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. Out-of-range costs fall back to
// bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare reports whether plaintext matches hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)

// Plain stores keys unhashed. Tests only.
type Plain struct{}

// Hash returns plaintext as bytes.
func (Plain) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

// Compare compares in constant time.
func (Plain) Compare(hash []byte, plaintext string) bool {
	return subtle.ConstantTimeCompare(hash, []byte(plaintext)) == 1
}

var _ ports.Hasher = Plain{}
