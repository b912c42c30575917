package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStore persists refresh-token state, keyed by jti.
type RefreshTokenStore interface {
	Create(ctx context.Context, token RefreshToken) error
	GetByJTI(ctx context.Context, jti string) (RefreshToken, error)

	// Claim atomically marks the token revoked iff it has not been revoked
	// yet, returning whether this caller won. Two concurrent rotations of
	// the same token see exactly one true.
	Claim(ctx context.Context, jti string) (bool, error)

	RevokeByJTI(ctx context.Context, jti string) error

	// RevokeLineage revokes every live token in a rotation chain and returns
	// the revoked rows so their jtis can be pushed to the revocation store.
	RevokeLineage(ctx context.Context, lineageID string) ([]RefreshToken, error)

	// RevokeAllByUser revokes every live token of a user and returns the
	// revoked rows.
	RevokeAllByUser(ctx context.Context, userID uuid.UUID) ([]RefreshToken, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshToken is the stored state of one refresh token. The serialized token
// itself is never stored; TokenHash holds a sha256 of it so a presented token
// can be matched without the store being able to replay it.
type RefreshToken struct {
	ID             uuid.UUID
	JTI            string
	UserID         uuid.UUID
	LineageID      string // jti of the rotation chain's root token
	TokenHash      []byte
	IssuedAt       time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	RotatedFromJTI *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
