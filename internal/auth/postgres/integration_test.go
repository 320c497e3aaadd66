//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpostgres "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

// startPostgres starts a disposable PostgreSQL container with the schema
// applied, and returns a connected pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gatehouse_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx) //nolint:errcheck // test cleanup
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	pool, err := store.Connect(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func integrationPrincipal(username string) *auth.Principal {
	return &auth.Principal{
		ID:           ulid.Make(),
		Kind:         auth.KindUser,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		User: &auth.UserProfile{
			FirstName: "Alice",
			LastName:  "Smith",
			Gender:    "female",
			Height:    "170cm",
			Age:       30,
			Race:      "human",
			City:      "Portland",
			State:     "OR",
			Country:   "US",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestPostgresRepositories_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pool := startPostgres(t)
	principals := authpostgres.NewPrincipalRepository(pool)
	sessions := authpostgres.NewSessionRepository(pool)

	t.Run("principal round trip", func(t *testing.T) {
		p := integrationPrincipal("alice")
		require.NoError(t, principals.Create(ctx, p))

		got, err := principals.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		require.NotNil(t, got.User)
		assert.Equal(t, "Alice", got.User.FirstName)

		got, err = principals.GetByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	})

	t.Run("unique index enforces one winner per username", func(t *testing.T) {
		require.NoError(t, principals.Create(ctx, integrationPrincipal("bob")))

		dup := integrationPrincipal("BOB")
		assert.ErrorIs(t, principals.Create(ctx, dup), auth.ErrUsernameTaken)
	})

	t.Run("session round trip and cascade", func(t *testing.T) {
		p := integrationPrincipal("carol")
		require.NoError(t, principals.Create(ctx, p))

		_, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		session, err := auth.NewSession(p.ID, hash, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, sessions.Create(ctx, session))

		got, err := sessions.GetByTokenHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)

		require.NoError(t, sessions.Delete(ctx, session.ID))
		_, err = sessions.GetByTokenHash(ctx, hash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete expired prunes stale sessions", func(t *testing.T) {
		p := integrationPrincipal("dave")
		require.NoError(t, principals.Create(ctx, p))

		_, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		session, err := auth.NewSession(p.ID, hash, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.NoError(t, sessions.Create(ctx, session))

		deleted, err := sessions.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))
	})
}
