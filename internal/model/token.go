package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims is the fixed, typed shape of the fields carried inside a token.
type Claims struct {
	Subject   uuid.UUID
	ID        string // jti, globally unique for the token's lifetime
	ParentID  string // jti of the refresh token this access token was minted from
	Kind      TokenKind
	Scope     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasScope reports whether every label in required is contained in the
// claims' scope set.
func (c Claims) HasScope(required ...string) bool {
	for _, want := range required {
		found := false
		for _, got := range c.Scope {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SigningKey is one HMAC signing key identified by its kid header value.
type SigningKey struct {
	ID     string
	Secret []byte
}

// TokenCodec creates and verifies signed, self-contained tokens.
type TokenCodec interface {
	// Issue builds claims for subject, stamps a fresh jti and timestamps,
	// signs with the active key and returns the serialized token alongside
	// the claims it carries. parentID links access tokens to the refresh
	// token that spawned them and is empty for refresh tokens.
	Issue(subject uuid.UUID, kind TokenKind, ttl time.Duration, scope []string, parentID string) (string, Claims, error)

	// Verify checks signature, key id and validity window. Failures are one
	// of ErrTokenMalformed, ErrBadSignature, ErrTokenExpired, ErrUnknownKey.
	Verify(serialized string) (Claims, error)
}
