// Package service orchestrates the credential and session core: login,
// refresh with rotation, revocation and authorization.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/galasfoundry/mooch-auth/internal/config"
	"github.com/galasfoundry/mooch-auth/internal/logger"
	"github.com/galasfoundry/mooch-auth/internal/model"
)

// Options carries the policy knobs of the session authority.
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// DefaultScope is stamped into tokens issued at login.
	DefaultScope []string

	// FailPolicy governs Authorize when the revocation answer is
	// unobtainable for reasons other than a timeout. Timeouts always fail
	// closed.
	FailPolicy config.FailPolicy

	// ElevatedScopes never fail open regardless of FailPolicy.
	ElevatedScopes []string

	// RevokeLineageOnReuse revokes the whole rotation chain when a rotated
	// refresh token is presented again.
	RevokeLineageOnReuse bool
}

// Auth is the session authority. All methods are safe for concurrent use;
// same-key hazards are resolved at the storage layer (atomic claim, atomic
// counters), not here.
type Auth struct {
	users       model.UserStore
	refresh     model.RefreshTokenStore
	revocations model.RevocationStore
	codec       model.TokenCodec
	hasher      model.PasswordHasher
	guard       model.LockoutGuard
	logger      *logger.Logger
	opts        Options

	elevated  map[string]struct{}
	dummyHash []byte
	now       func() time.Time
}

// NewAuth wires the session authority. The dummy hash burned for unknown
// identifiers is produced once here so Login's cost does not depend on
// whether the account exists.
func NewAuth(
	users model.UserStore,
	refresh model.RefreshTokenStore,
	revocations model.RevocationStore,
	codec model.TokenCodec,
	hasher model.PasswordHasher,
	guard model.LockoutGuard,
	logger *logger.Logger,
	opts Options,
) (*Auth, error) {
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	elevated := make(map[string]struct{}, len(opts.ElevatedScopes))
	for _, scope := range opts.ElevatedScopes {
		elevated[scope] = struct{}{}
	}

	return &Auth{
		users:       users,
		refresh:     refresh,
		revocations: revocations,
		codec:       codec,
		hasher:      hasher,
		guard:       guard,
		logger:      logger,
		opts:        opts,
		elevated:    elevated,
		dummyHash:   dummyHash,
		now:         time.Now,
	}, nil
}

// WithClock overrides the service's time source and returns the service.
func (a *Auth) WithClock(now func() time.Time) *Auth {
	a.now = now
	return a
}

// Login verifies the credential and issues an access/refresh pair. Unknown
// identifier and password mismatch are indistinguishable to the caller.
func (a *Auth) Login(ctx context.Context, identifier, secret string) (model.TokenPair, error) {
	a.logger.Debug("auth service: login attempt", "identifier", identifier)

	if err := a.guard.Allow(ctx, identifier); err != nil {
		return model.TokenPair{}, err
	}

	user, err := a.users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, model.ErrNotFound) {
		// Burn a comparison so unknown identifiers cost the same as a
		// mismatch.
		a.hasher.Verify(secret, a.dummyHash)
		a.recordFailure(ctx, identifier)
		return model.TokenPair{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.TokenPair{}, storeError(err)
	}

	if !a.hasher.Verify(secret, user.PasswordHash) {
		a.recordFailure(ctx, identifier)
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if a.hasher.NeedsRehash(user.PasswordHash) {
		a.rehash(ctx, user, secret)
	}

	pair, _, err := a.issuePair(ctx, user.ID, a.opts.DefaultScope, "", nil)
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := a.guard.Reset(ctx, identifier); err != nil {
		a.logger.Warn("auth service: failed to reset lockout counter",
			"identifier", identifier,
			"error", err.Error())
	}

	a.logger.Info("auth service: login succeeded", "user_id", user.ID)
	return pair, nil
}

// Refresh rotates the presented refresh token: the old token is atomically
// claimed and revoked, and a fresh pair is issued in the same lineage. A
// second presentation of the same token loses the claim and gets
// ErrTokenRevoked; with RevokeLineageOnReuse the whole chain dies as a
// security response to the detected double use.
func (a *Auth) Refresh(ctx context.Context, presented string) (model.TokenPair, error) {
	claims, err := a.codec.Verify(presented)
	if err != nil {
		return model.TokenPair{}, err
	}
	if claims.Kind != model.TokenKindRefresh {
		return model.TokenPair{}, fmt.Errorf("%w: not a refresh token", model.ErrTokenMalformed)
	}

	rt, err := a.refresh.GetByJTI(ctx, claims.ID)
	if errors.Is(err, model.ErrNotFound) {
		return model.TokenPair{}, model.ErrTokenRevoked
	}
	if err != nil {
		return model.TokenPair{}, storeError(err)
	}

	// A valid signature with a different serialization than the stored one
	// means the stored state cannot vouch for this token.
	if subtle.ConstantTimeCompare(rt.TokenHash, hashToken(presented)) != 1 {
		return model.TokenPair{}, model.ErrTokenRevoked
	}
	if a.now().After(rt.ExpiresAt) {
		return model.TokenPair{}, model.ErrTokenExpired
	}

	claimed, err := a.refresh.Claim(ctx, claims.ID)
	if err != nil {
		return model.TokenPair{}, storeError(err)
	}
	if !claimed {
		a.logger.Warn("auth service: refresh token double use detected",
			"jti", rt.JTI,
			"lineage_id", rt.LineageID,
			"user_id", rt.UserID)
		if a.opts.RevokeLineageOnReuse {
			a.revokeLineage(ctx, rt.LineageID, rt.ExpiresAt)
		}
		return model.TokenPair{}, model.ErrTokenRevoked
	}

	// Block the old jti so access tokens minted from it fail the parent
	// check from now on.
	if err := a.revocations.Revoke(ctx, rt.JTI, rt.ExpiresAt); err != nil {
		return model.TokenPair{}, err
	}

	pair, newClaims, err := a.issuePair(ctx, rt.UserID, claims.Scope, rt.LineageID, &rt.JTI)
	if err != nil {
		return model.TokenPair{}, err
	}

	// A reuse sweep may have run between the claim and the insert of the
	// fresh token, missing it. The lineage marker is written before the
	// sweep, so seeing it here means the fresh token must die with the
	// chain.
	if a.opts.RevokeLineageOnReuse {
		dead, err := a.revocations.IsRevoked(ctx, lineageKey(rt.LineageID))
		if err != nil {
			a.logger.Warn("auth service: lineage liveness check failed",
				"lineage_id", rt.LineageID,
				"error", err.Error())
		} else if dead {
			a.logger.Warn("auth service: lineage died during rotation, revoking fresh token",
				"jti", newClaims.ID,
				"lineage_id", rt.LineageID)
			if err := a.refresh.RevokeByJTI(ctx, newClaims.ID); err != nil {
				a.logger.Error("auth service: failed to revoke fresh refresh token",
					"jti", newClaims.ID,
					"error", err.Error())
			}
			if err := a.revocations.Revoke(ctx, newClaims.ID, newClaims.ExpiresAt); err != nil {
				a.logger.Error("auth service: failed to push revocation",
					"jti", newClaims.ID,
					"error", err.Error())
			}
		}
	}

	a.logger.Info("auth service: refresh token rotated",
		"user_id", rt.UserID,
		"lineage_id", rt.LineageID)
	return pair, nil
}

// Revoke marks the presented token's identifier revoked. Revoking a refresh
// token also invalidates the access tokens minted from it, enforced by the
// parent check at verification time rather than an eager cascade.
func (a *Auth) Revoke(ctx context.Context, presented string) error {
	claims, err := a.codec.Verify(presented)
	if errors.Is(err, model.ErrTokenExpired) {
		// Natural expiry already ended the token's life.
		return nil
	}
	if err != nil {
		return err
	}

	if claims.Kind == model.TokenKindRefresh {
		if err := a.refresh.RevokeByJTI(ctx, claims.ID); err != nil {
			return storeError(err)
		}
	}

	if err := a.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return err
	}

	a.logger.Info("auth service: token revoked",
		"jti", claims.ID,
		"kind", claims.Kind,
		"user_id", claims.Subject)
	return nil
}

// Authorize is the hot path for protected requests: signature and window
// checks, revocation of both the token and its parent, then scope
// containment.
func (a *Auth) Authorize(ctx context.Context, accessToken string, requiredScope ...string) (model.Claims, error) {
	claims, err := a.codec.Verify(accessToken)
	if err != nil {
		return model.Claims{}, err
	}
	if claims.Kind != model.TokenKindAccess {
		return model.Claims{}, fmt.Errorf("%w: not an access token", model.ErrTokenMalformed)
	}

	for _, jti := range []string{claims.ID, claims.ParentID} {
		if jti == "" {
			continue
		}
		revoked, err := a.revocations.IsRevoked(ctx, jti)
		if err != nil {
			if !a.mayFailOpen(claims, err) {
				return model.Claims{}, err
			}
			a.logger.Warn("auth service: revocation check unavailable, failing open",
				"jti", jti,
				"error", err.Error())
			continue
		}
		if revoked {
			return model.Claims{}, model.ErrTokenRevoked
		}
	}

	if !claims.HasScope(requiredScope...) {
		return model.Claims{}, model.ErrInsufficientScope
	}
	return claims, nil
}

// GetUser resolves a token subject to its user record. Deleted users come
// back as ErrNotFound.
func (a *Auth) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	user, err := a.users.GetByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, err
	}
	if err != nil {
		return model.User{}, storeError(err)
	}
	return user, nil
}

// RevokeAllForUser ends every live session of a user.
func (a *Auth) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	revoked, err := a.refresh.RevokeAllByUser(ctx, userID)
	if err != nil {
		return storeError(err)
	}
	a.pushRevocations(ctx, revoked)

	a.logger.Info("auth service: all sessions revoked",
		"user_id", userID,
		"sessions", len(revoked))
	return nil
}

// Register creates a user from an identifier and secret. The secret is
// hashed immediately and never stored.
func (a *Auth) Register(ctx context.Context, identifier, secret string) (model.User, error) {
	hash, err := a.hasher.Hash(secret)
	if err != nil {
		return model.User{}, err
	}

	now := a.now()
	user, err := a.users.Create(ctx, model.User{
		ID:           uuid.New(),
		Identifier:   identifier,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, model.ErrIdentifierTaken) {
			return model.User{}, err
		}
		return model.User{}, storeError(err)
	}

	a.logger.Info("auth service: user registered", "user_id", user.ID)
	return user, nil
}

// ChangePassword verifies the old secret, persists a hash of the new one and
// revokes every outstanding session of the user.
func (a *Auth) ChangePassword(ctx context.Context, identifier, oldSecret, newSecret string) error {
	if err := a.guard.Allow(ctx, identifier); err != nil {
		return err
	}

	user, err := a.users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, model.ErrNotFound) {
		a.hasher.Verify(oldSecret, a.dummyHash)
		a.recordFailure(ctx, identifier)
		return model.ErrInvalidCredentials
	}
	if err != nil {
		return storeError(err)
	}

	if !a.hasher.Verify(oldSecret, user.PasswordHash) {
		a.recordFailure(ctx, identifier)
		return model.ErrInvalidCredentials
	}

	hash, err := a.hasher.Hash(newSecret)
	if err != nil {
		return err
	}
	if err := a.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return storeError(err)
	}

	if err := a.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	if err := a.guard.Reset(ctx, identifier); err != nil {
		a.logger.Warn("auth service: failed to reset lockout counter",
			"identifier", identifier,
			"error", err.Error())
	}

	a.logger.Info("auth service: password changed", "user_id", user.ID)
	return nil
}

func (a *Auth) issuePair(ctx context.Context, userID uuid.UUID, scope []string, lineageID string, rotatedFrom *string) (model.TokenPair, model.Claims, error) {
	refreshToken, refreshClaims, err := a.codec.Issue(userID, model.TokenKindRefresh, a.opts.RefreshTTL, scope, "")
	if err != nil {
		return model.TokenPair{}, model.Claims{}, fmt.Errorf("issue refresh: %w", err)
	}
	if lineageID == "" {
		lineageID = refreshClaims.ID
	}

	rt := model.RefreshToken{
		ID:             uuid.New(),
		JTI:            refreshClaims.ID,
		UserID:         userID,
		LineageID:      lineageID,
		TokenHash:      hashToken(refreshToken),
		IssuedAt:       refreshClaims.IssuedAt,
		ExpiresAt:      refreshClaims.ExpiresAt,
		RotatedFromJTI: rotatedFrom,
	}
	if err := a.refresh.Create(ctx, rt); err != nil {
		return model.TokenPair{}, model.Claims{}, storeError(fmt.Errorf("persist refresh: %w", err))
	}

	accessToken, _, err := a.codec.Issue(userID, model.TokenKindAccess, a.opts.AccessTTL, scope, refreshClaims.ID)
	if err != nil {
		return model.TokenPair{}, model.Claims{}, fmt.Errorf("issue access: %w", err)
	}

	return model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, refreshClaims, nil
}

func (a *Auth) revokeLineage(ctx context.Context, lineageID string, expiresAt time.Time) {
	// The marker goes in before the sweep so an in-flight rotation cannot
	// slip a fresh token past it.
	if err := a.revocations.Revoke(ctx, lineageKey(lineageID), expiresAt); err != nil {
		a.logger.Error("auth service: failed to mark lineage revoked",
			"lineage_id", lineageID,
			"error", err.Error())
	}

	revoked, err := a.refresh.RevokeLineage(ctx, lineageID)
	if err != nil {
		a.logger.Error("auth service: failed to revoke token lineage",
			"lineage_id", lineageID,
			"error", err.Error())
		return
	}
	a.pushRevocations(ctx, revoked)
}

func (a *Auth) pushRevocations(ctx context.Context, tokens []model.RefreshToken) {
	for _, rt := range tokens {
		if err := a.revocations.Revoke(ctx, rt.JTI, rt.ExpiresAt); err != nil {
			a.logger.Error("auth service: failed to push revocation",
				"jti", rt.JTI,
				"error", err.Error())
		}
	}
}

func (a *Auth) rehash(ctx context.Context, user model.User, secret string) {
	hash, err := a.hasher.Hash(secret)
	if err == nil {
		err = a.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		// The stored hash still verifies; upgrading it can wait for the
		// next login.
		a.logger.Warn("auth service: transparent rehash failed",
			"user_id", user.ID,
			"error", err.Error())
	}
}

func (a *Auth) recordFailure(ctx context.Context, key string) {
	if err := a.guard.RecordFailure(ctx, key); err != nil {
		a.logger.Warn("auth service: failed to record login failure",
			"key", key,
			"error", err.Error())
	}
}

// mayFailOpen implements the named fail-open policy: never for timeouts,
// never for elevated scopes.
func (a *Auth) mayFailOpen(claims model.Claims, err error) bool {
	if a.opts.FailPolicy != config.FailOpen {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, scope := range claims.Scope {
		if _, ok := a.elevated[scope]; ok {
			return false
		}
	}
	return true
}

func storeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", model.ErrUnavailable, err)
	}
	return err
}

func hashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// lineageKey namespaces a lineage id in the revocation store. JTIs are
// uuids, so the prefix cannot collide with a token entry.
func lineageKey(lineageID string) string {
	return "lineage:" + lineageID
}
