// Package mocks provides testify mocks for the store and codec contracts.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/galasfoundry/mooch-auth/internal/model"
)

type UserStore struct {
	mock.Mock
}

func (m *UserStore) FindByIdentifier(ctx context.Context, identifier string) (model.User, error) {
	args := m.Called(ctx, identifier)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash []byte) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

type RefreshTokenStore struct {
	mock.Mock
}

func (m *RefreshTokenStore) Create(ctx context.Context, token model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *RefreshTokenStore) GetByJTI(ctx context.Context, jti string) (model.RefreshToken, error) {
	args := m.Called(ctx, jti)
	return args.Get(0).(model.RefreshToken), args.Error(1)
}

func (m *RefreshTokenStore) Claim(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

func (m *RefreshTokenStore) RevokeByJTI(ctx context.Context, jti string) error {
	args := m.Called(ctx, jti)
	return args.Error(0)
}

func (m *RefreshTokenStore) RevokeLineage(ctx context.Context, lineageID string) ([]model.RefreshToken, error) {
	args := m.Called(ctx, lineageID)
	tokens, _ := args.Get(0).([]model.RefreshToken)
	return tokens, args.Error(1)
}

func (m *RefreshTokenStore) RevokeAllByUser(ctx context.Context, userID uuid.UUID) ([]model.RefreshToken, error) {
	args := m.Called(ctx, userID)
	tokens, _ := args.Get(0).([]model.RefreshToken)
	return tokens, args.Error(1)
}

func (m *RefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type RevocationStore struct {
	mock.Mock
}

func (m *RevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	args := m.Called(ctx, jti, expiresAt)
	return args.Error(0)
}

func (m *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

func (m *RevocationStore) GarbageCollect(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type TokenCodec struct {
	mock.Mock
}

func (m *TokenCodec) Issue(subject uuid.UUID, kind model.TokenKind, ttl time.Duration, scope []string, parentID string) (string, model.Claims, error) {
	args := m.Called(subject, kind, ttl, scope, parentID)
	return args.String(0), args.Get(1).(model.Claims), args.Error(2)
}

func (m *TokenCodec) Verify(serialized string) (model.Claims, error) {
	args := m.Called(serialized)
	return args.Get(0).(model.Claims), args.Error(1)
}

type PasswordHasher struct {
	mock.Mock
}

func (m *PasswordHasher) Hash(secret string) ([]byte, error) {
	args := m.Called(secret)
	hash, _ := args.Get(0).([]byte)
	return hash, args.Error(1)
}

func (m *PasswordHasher) Verify(secret string, hash []byte) bool {
	args := m.Called(secret, hash)
	return args.Bool(0)
}

func (m *PasswordHasher) NeedsRehash(hash []byte) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

type LockoutGuard struct {
	mock.Mock
}

func (m *LockoutGuard) Allow(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *LockoutGuard) RecordFailure(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *LockoutGuard) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
