package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galasfoundry/mooch-auth/internal/model"
)

var (
	activeKey  = model.SigningKey{ID: "k1", Secret: []byte("first-secret")}
	retiredKey = model.SigningKey{ID: "k0", Secret: []byte("old-secret")}
)

func TestJWT_RoundTrip(t *testing.T) {
	userID := uuid.New()
	j := NewJWT(activeKey, nil, 0)

	serialized, issued, err := j.Issue(userID, model.TokenKindAccess, time.Hour, []string{"user", "playlists"}, "parent-jti")
	require.NoError(t, err)
	require.NotEmpty(t, serialized)
	require.NotEmpty(t, issued.ID)

	claims, err := j.Verify(serialized)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, "parent-jti", claims.ParentID)
	assert.Equal(t, model.TokenKindAccess, claims.Kind)
	assert.Equal(t, []string{"user", "playlists"}, claims.Scope)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestJWT_UniqueTokenIDs(t *testing.T) {
	j := NewJWT(activeKey, nil, 0)
	userID := uuid.New()

	seen := make(map[string]bool)
	for range 50 {
		_, claims, err := j.Issue(userID, model.TokenKindRefresh, time.Hour, nil, "")
		require.NoError(t, err)
		require.False(t, seen[claims.ID], "jti %s issued twice", claims.ID)
		seen[claims.ID] = true
	}
}

func TestJWT_ZeroTTLExpiresOncePastSkew(t *testing.T) {
	now := time.Now()
	clock := now
	j := NewJWT(activeKey, nil, 5*time.Second).WithClock(func() time.Time { return clock })

	serialized, _, err := j.Issue(uuid.New(), model.TokenKindAccess, 0, nil, "")
	require.NoError(t, err)

	// Inside the skew tolerance the token still verifies.
	_, err = j.Verify(serialized)
	require.NoError(t, err)

	clock = now.Add(6 * time.Second)
	_, err = j.Verify(serialized)
	require.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestJWT_Expired(t *testing.T) {
	now := time.Now()
	clock := now
	j := NewJWT(activeKey, nil, 0).WithClock(func() time.Time { return clock })

	serialized, _, err := j.Issue(uuid.New(), model.TokenKindAccess, time.Minute, nil, "")
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = j.Verify(serialized)
	require.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestJWT_BadSignature(t *testing.T) {
	j := NewJWT(activeKey, nil, 0)
	other := NewJWT(model.SigningKey{ID: "k1", Secret: []byte("different-secret")}, nil, 0)

	serialized, _, err := other.Issue(uuid.New(), model.TokenKindAccess, time.Hour, nil, "")
	require.NoError(t, err)

	_, err = j.Verify(serialized)
	require.ErrorIs(t, err, model.ErrBadSignature)
}

func TestJWT_Malformed(t *testing.T) {
	j := NewJWT(activeKey, nil, 0)

	_, err := j.Verify("not.a.token")
	require.ErrorIs(t, err, model.ErrTokenMalformed)

	_, err = j.Verify("")
	require.ErrorIs(t, err, model.ErrTokenMalformed)
}

func TestJWT_UnknownKey(t *testing.T) {
	stranger := NewJWT(model.SigningKey{ID: "k9", Secret: []byte("stranger-secret")}, nil, 0)
	serialized, _, err := stranger.Issue(uuid.New(), model.TokenKindAccess, time.Hour, nil, "")
	require.NoError(t, err)

	j := NewJWT(activeKey, nil, 0)
	_, err = j.Verify(serialized)
	require.ErrorIs(t, err, model.ErrUnknownKey)
}

func TestJWT_RetiredKeyVerifiesButDoesNotSign(t *testing.T) {
	old := NewJWT(retiredKey, nil, 0)
	serialized, _, err := old.Issue(uuid.New(), model.TokenKindAccess, time.Hour, nil, "")
	require.NoError(t, err)

	j := NewJWT(activeKey, []model.SigningKey{retiredKey}, 0)

	// Tokens signed before rotation still verify.
	_, err = j.Verify(serialized)
	require.NoError(t, err)

	// New issuance carries the active kid.
	fresh, _, err := j.Issue(uuid.New(), model.TokenKindAccess, time.Hour, nil, "")
	require.NoError(t, err)
	_, err = old.Verify(fresh)
	require.ErrorIs(t, err, model.ErrUnknownKey)
}

func TestJWT_Rotate(t *testing.T) {
	j := NewJWT(activeKey, nil, 0)

	before, _, err := j.Issue(uuid.New(), model.TokenKindAccess, time.Hour, nil, "")
	require.NoError(t, err)

	next := model.SigningKey{ID: "k2", Secret: []byte("second-secret")}
	j.Rotate(next)

	// Pre-rotation tokens verify against the retired key.
	_, err = j.Verify(before)
	require.NoError(t, err)

	after, _, err := j.Issue(uuid.New(), model.TokenKindAccess, time.Hour, nil, "")
	require.NoError(t, err)
	claims, err := j.Verify(after)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
}

func TestJWT_RotateBoundsRetiredSet(t *testing.T) {
	j := NewJWT(activeKey, nil, 0)

	first, _, err := j.Issue(uuid.New(), model.TokenKindAccess, time.Hour, nil, "")
	require.NoError(t, err)

	for i := 0; i < maxRetiredKeys+1; i++ {
		j.Rotate(model.SigningKey{ID: uuid.NewString(), Secret: []byte(uuid.NewString())})
	}

	// The original key has been pushed off the retired tail.
	_, err = j.Verify(first)
	require.ErrorIs(t, err, model.ErrUnknownKey)
}
