//go:build integration

package postgres_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/galasfoundry/mooch-auth/internal/model"
	repo "github.com/galasfoundry/mooch-auth/internal/repository/postgres"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "mooch_auth_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/mooch_auth_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newUser(identifier string) model.User {
	return model.User{
		ID:           uuid.New(),
		Identifier:   identifier,
		PasswordHash: []byte("$2a$12$bogus-hash-for-tests"),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func newRefreshToken(userID uuid.UUID, jti, lineageID string) model.RefreshToken {
	hash := sha256.Sum256([]byte(jti))
	return model.RefreshToken{
		ID:        uuid.New(),
		JTI:       jti,
		UserID:    userID,
		LineageID: lineageID,
		TokenHash: hash[:],
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestRepositories_CRUD(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	t.Run("user_repository", func(t *testing.T) {
		ur := repo.NewUserRepository(conn)

		u := newUser("alice@mooch.fm")
		saved, err := ur.Create(ctx, u)
		require.NoError(t, err)
		require.Equal(t, u.ID, saved.ID)

		_, err = ur.Create(ctx, newUser("alice@mooch.fm"))
		require.ErrorIs(t, err, model.ErrIdentifierTaken)

		byIdent, err := ur.FindByIdentifier(ctx, u.Identifier)
		require.NoError(t, err)
		require.Equal(t, u.ID, byIdent.ID)

		byID, err := ur.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Identifier, byID.Identifier)

		require.NoError(t, ur.UpdatePasswordHash(ctx, u.ID, []byte("$2a$12$replacement")))
		updated, err := ur.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, []byte("$2a$12$replacement"), updated.PasswordHash)

		err = ur.UpdatePasswordHash(ctx, uuid.New(), []byte("x"))
		require.ErrorIs(t, err, model.ErrNotFound)

		_, err = ur.FindByIdentifier(ctx, "nobody@mooch.fm")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("refresh_token_repository", func(t *testing.T) {
		ur := repo.NewUserRepository(conn)
		rr := repo.NewRefreshTokenRepository(conn)

		owner, err := ur.Create(ctx, newUser("bob@mooch.fm"))
		require.NoError(t, err)

		rt := newRefreshToken(owner.ID, "jti-crud-1", "jti-crud-1")
		require.NoError(t, rr.Create(ctx, rt))

		got, err := rr.GetByJTI(ctx, rt.JTI)
		require.NoError(t, err)
		require.Equal(t, rt.UserID, got.UserID)
		require.Equal(t, rt.LineageID, got.LineageID)
		require.Nil(t, got.RevokedAt)

		_, err = rr.GetByJTI(ctx, "jti-missing")
		require.ErrorIs(t, err, model.ErrNotFound)

		claimed, err := rr.Claim(ctx, rt.JTI)
		require.NoError(t, err)
		require.True(t, claimed)

		claimed, err = rr.Claim(ctx, rt.JTI)
		require.NoError(t, err)
		require.False(t, claimed, "second claim of the same jti must lose")

		got, err = rr.GetByJTI(ctx, rt.JTI)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
	})

	t.Run("refresh_token_lineage", func(t *testing.T) {
		ur := repo.NewUserRepository(conn)
		rr := repo.NewRefreshTokenRepository(conn)

		owner, err := ur.Create(ctx, newUser("carol@mooch.fm"))
		require.NoError(t, err)

		root := newRefreshToken(owner.ID, "jti-lin-root", "jti-lin-root")
		require.NoError(t, rr.Create(ctx, root))
		child := newRefreshToken(owner.ID, "jti-lin-child", "jti-lin-root")
		child.RotatedFromJTI = &root.JTI
		require.NoError(t, rr.Create(ctx, child))
		other := newRefreshToken(owner.ID, "jti-lin-other", "jti-lin-other")
		require.NoError(t, rr.Create(ctx, other))

		revoked, err := rr.RevokeLineage(ctx, "jti-lin-root")
		require.NoError(t, err)
		require.Len(t, revoked, 2)

		// Already-revoked rows are not returned a second time.
		revoked, err = rr.RevokeLineage(ctx, "jti-lin-root")
		require.NoError(t, err)
		require.Empty(t, revoked)

		// The unrelated lineage is untouched until the user-wide revoke.
		got, err := rr.GetByJTI(ctx, other.JTI)
		require.NoError(t, err)
		require.Nil(t, got.RevokedAt)

		revoked, err = rr.RevokeAllByUser(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, revoked, 1)
		require.Equal(t, other.JTI, revoked[0].JTI)
	})

	t.Run("refresh_token_expiry", func(t *testing.T) {
		ur := repo.NewUserRepository(conn)
		rr := repo.NewRefreshTokenRepository(conn)

		owner, err := ur.Create(ctx, newUser("dave@mooch.fm"))
		require.NoError(t, err)

		stale := newRefreshToken(owner.ID, "jti-stale", "jti-stale")
		stale.ExpiresAt = time.Now().Add(-time.Hour)
		require.NoError(t, rr.Create(ctx, stale))
		live := newRefreshToken(owner.ID, "jti-live", "jti-live")
		require.NoError(t, rr.Create(ctx, live))

		deleted, err := rr.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		require.GreaterOrEqual(t, deleted, int64(1))

		_, err = rr.GetByJTI(ctx, stale.JTI)
		require.ErrorIs(t, err, model.ErrNotFound)
		_, err = rr.GetByJTI(ctx, live.JTI)
		require.NoError(t, err)
	})

	t.Run("revocation_repository", func(t *testing.T) {
		rv := repo.NewRevocationRepository(conn)

		now := time.Now()
		entry := model.RevocationEntry{JTI: "jti-rev-1", ExpiresAt: now.Add(time.Hour), RevokedAt: now}
		require.NoError(t, rv.Insert(ctx, entry))
		require.NoError(t, rv.Insert(ctx, entry), "insert must be idempotent")

		revoked, err := rv.Contains(ctx, entry.JTI, now)
		require.NoError(t, err)
		require.True(t, revoked)

		// Past its copied expiry the entry no longer blocks anything.
		revoked, err = rv.Contains(ctx, entry.JTI, now.Add(2*time.Hour))
		require.NoError(t, err)
		require.False(t, revoked)

		stale := model.RevocationEntry{JTI: "jti-rev-stale", ExpiresAt: now.Add(-time.Hour), RevokedAt: now.Add(-2 * time.Hour)}
		require.NoError(t, rv.Insert(ctx, stale))

		live, err := rv.ListLive(ctx, now)
		require.NoError(t, err)
		jtis := make([]string, 0, len(live))
		for _, e := range live {
			jtis = append(jtis, e.JTI)
		}
		require.Contains(t, jtis, entry.JTI)
		require.NotContains(t, jtis, stale.JTI)

		deleted, err := rv.DeleteExpired(ctx, now)
		require.NoError(t, err)
		require.GreaterOrEqual(t, deleted, int64(1))
	})
}

func TestRefreshTokenRepository_ClaimIsAtomic(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ur := repo.NewUserRepository(conn)
	rr := repo.NewRefreshTokenRepository(conn)

	owner, err := ur.Create(ctx, newUser("race@mooch.fm"))
	require.NoError(t, err)
	require.NoError(t, rr.Create(ctx, newRefreshToken(owner.ID, "jti-race", "jti-race")))

	type claimResult struct {
		claimed bool
		err     error
	}

	const racers = 16
	results := make(chan claimResult, racers)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			claimed, err := rr.Claim(ctx, "jti-race")
			results <- claimResult{claimed: claimed, err: err}
		}()
	}
	start.Done()

	var winners int
	for i := 0; i < racers; i++ {
		res := <-results
		require.NoError(t, res.err)
		if res.claimed {
			winners++
		}
	}
	require.Equal(t, 1, winners, "exactly one concurrent claim must win")
}
