package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, user User) (User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash []byte) error
}

// User represents a stored user with authentication material. PasswordHash is
// the only secret-derived field; plaintext secrets are never persisted.
type User struct {
	ID           uuid.UUID
	Identifier   string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// PasswordHasher hashes and verifies login secrets.
type PasswordHasher interface {
	Hash(secret string) ([]byte, error)
	// Verify reports whether secret matches hash. Mismatch is a normal false,
	// not an error; the comparison is constant-time.
	Verify(secret string, hash []byte) bool
	// NeedsRehash reports whether hash was produced below the currently
	// configured work factor.
	NeedsRehash(hash []byte) bool
}
