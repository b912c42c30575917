// Package password hashes and verifies login secrets with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input beyond 72 bytes, so longer secrets are rejected
// instead of being silently truncated.
const maxSecretLength = 72

// ErrSecretTooLong is returned by Hash for secrets exceeding the bcrypt
// input limit.
var ErrSecretTooLong = errors.New("secret exceeds maximum length")

// Hasher produces salted bcrypt hashes at a configured cost.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the given work factor. Cost is clamped into
// the range bcrypt accepts.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted hash of secret. Identical secrets hash differently
// across calls because bcrypt embeds a random salt.
func (h *Hasher) Hash(secret string) ([]byte, error) {
	if len(secret) > maxSecretLength {
		return nil, ErrSecretTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}
	return hash, nil
}

// Verify reports whether secret matches hash. bcrypt's comparison is
// constant-time over the digest; mismatch is a normal false, not an error.
func (h *Hasher) Verify(secret string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// NeedsRehash reports whether hash was produced below the configured cost,
// signaling a transparent re-hash on next successful login.
func (h *Hasher) NeedsRehash(hash []byte) bool {
	cost, err := bcrypt.Cost(hash)
	if err != nil {
		return true
	}
	return cost < h.cost
}
