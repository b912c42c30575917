// Package token implements the signed token codec on top of JWT with HMAC
// signing and kid-based key rotation.
package token

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/galasfoundry/mooch-auth/internal/model"
)

// Claims represents JWT claims with token kind, scope and parent linkage.
type Claims struct {
	jwt.RegisteredClaims
	Kind     string   `json:"typ"`
	Scope    []string `json:"scope,omitempty"`
	ParentID string   `json:"pjti,omitempty"`
}

// Keyset holds the active signing key plus recently retired keys. Retired
// keys verify tokens issued before rotation; issuance always uses Active.
type Keyset struct {
	Active  model.SigningKey
	Retired []model.SigningKey
}

func (k *Keyset) lookup(kid string) (model.SigningKey, bool) {
	if k.Active.ID == kid {
		return k.Active, true
	}
	for _, key := range k.Retired {
		if key.ID == kid {
			return key, true
		}
	}
	return model.SigningKey{}, false
}

// maxRetiredKeys bounds the verification key tail after repeated rotations.
const maxRetiredKeys = 3

// JWT implements model.TokenCodec backed by symmetric HMAC. The keyset is
// swapped atomically on rotation, so Issue and Verify need no locking.
type JWT struct {
	keys atomic.Pointer[Keyset]
	skew time.Duration
	now  func() time.Time
}

var _ model.TokenCodec = (*JWT)(nil)

// NewJWT creates a codec with the given active key, retired verification
// keys and clock skew tolerance.
func NewJWT(active model.SigningKey, retired []model.SigningKey, skew time.Duration) *JWT {
	j := &JWT{skew: skew, now: time.Now}
	j.keys.Store(&Keyset{Active: active, Retired: retired})
	return j
}

// WithClock overrides the codec's time source and returns the codec.
func (j *JWT) WithClock(now func() time.Time) *JWT {
	j.now = now
	return j
}

// Issue signs a token of the given kind for subject with a fresh jti.
func (j *JWT) Issue(subject uuid.UUID, kind model.TokenKind, ttl time.Duration, scope []string, parentID string) (string, model.Claims, error) {
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:     string(kind),
		Scope:    scope,
		ParentID: parentID,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	keyset := j.keys.Load()
	tok.Header["kid"] = keyset.Active.ID

	serialized, err := tok.SignedString(keyset.Active.Secret)
	if err != nil {
		return "", model.Claims{}, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	out, err := toModelClaims(&claims)
	if err != nil {
		return "", model.Claims{}, err
	}
	return serialized, out, nil
}

// Verify checks signature, key id and the validity window
// [iat-skew, exp+skew] and returns the embedded claims.
func (j *JWT) Verify(serialized string) (model.Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(serialized, claims, j.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(j.skew),
		jwt.WithTimeFunc(j.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Claims{}, mapParseError(err)
	}
	if !tok.Valid {
		return model.Claims{}, model.ErrBadSignature
	}
	return toModelClaims(claims)
}

// Rotate installs next as the active signing key and moves the previous
// active key to the head of the retired set.
func (j *JWT) Rotate(next model.SigningKey) {
	for {
		old := j.keys.Load()
		retired := make([]model.SigningKey, 0, len(old.Retired)+1)
		retired = append(retired, old.Active)
		retired = append(retired, old.Retired...)
		if len(retired) > maxRetiredKeys {
			retired = retired[:maxRetiredKeys]
		}
		if j.keys.CompareAndSwap(old, &Keyset{Active: next, Retired: retired}) {
			return
		}
	}
}

func (j *JWT) keyFunc(t *jwt.Token) (interface{}, error) {
	kid, ok := t.Header["kid"].(string)
	if !ok {
		return nil, model.ErrUnknownKey
	}
	key, ok := j.keys.Load().lookup(kid)
	if !ok {
		return nil, model.ErrUnknownKey
	}
	return key.Secret, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, model.ErrUnknownKey):
		return model.ErrUnknownKey
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return model.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return model.ErrBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return model.ErrTokenMalformed
	default:
		return fmt.Errorf("%w: %s", model.ErrTokenMalformed, err)
	}
}

func toModelClaims(c *Claims) (model.Claims, error) {
	subject, err := uuid.Parse(c.Subject)
	if err != nil {
		return model.Claims{}, fmt.Errorf("%w: bad subject", model.ErrTokenMalformed)
	}
	out := model.Claims{
		Subject:  subject,
		ID:       c.ID,
		ParentID: c.ParentID,
		Kind:     model.TokenKind(c.Kind),
		Scope:    c.Scope,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
