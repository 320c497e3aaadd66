// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
)

func newTestService(t *testing.T, sessionTTL time.Duration) *auth.Service {
	t.Helper()

	issuer, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	svc, err := auth.NewService(
		memory.NewPrincipalRepository(),
		memory.NewSessionRepository(),
		auth.NewArgon2idHasher(),
		issuer,
		sessionTTL,
	)
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	issuer, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	t.Run("rejects nil dependencies", func(t *testing.T) {
		_, err := auth.NewService(nil, memory.NewSessionRepository(), auth.NewArgon2idHasher(), issuer, time.Hour)
		assert.Error(t, err)

		_, err = auth.NewService(memory.NewPrincipalRepository(), nil, auth.NewArgon2idHasher(), issuer, time.Hour)
		assert.Error(t, err)

		_, err = auth.NewService(memory.NewPrincipalRepository(), memory.NewSessionRepository(), nil, issuer, time.Hour)
		assert.Error(t, err)

		_, err = auth.NewService(memory.NewPrincipalRepository(), memory.NewSessionRepository(), auth.NewArgon2idHasher(), nil, time.Hour)
		assert.Error(t, err)
	})
}

func TestServiceRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("establishes a session and issues a token", func(t *testing.T) {
		svc := newTestService(t, time.Hour)

		result, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		assert.Equal(t, "alice", result.Principal.Username)
		assert.NotEmpty(t, result.SessionToken)
		assert.NotEmpty(t, result.BearerToken)
		require.NotNil(t, result.Session)

		// The session resolves straight back to the new principal.
		principal, session, err := svc.ResolveSession(ctx, result.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, result.Principal.ID, principal.ID.String())
		assert.Equal(t, result.Session.ID, session.ID)
	})

	t.Run("invalid input fails with validation error", func(t *testing.T) {
		svc := newTestService(t, time.Hour)

		in := validUserInput()
		in.Email = ""
		_, err := svc.Register(ctx, in)
		assert.ErrorIs(t, err, auth.ErrValidation)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		svc := newTestService(t, time.Hour)

		_, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		_, err = svc.Register(ctx, validUserInput())
		assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	})

	t.Run("username namespace is shared across kinds", func(t *testing.T) {
		svc := newTestService(t, time.Hour)

		_, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		in := validBusinessInput()
		in.Username = "alice"
		_, err = svc.Register(ctx, in)
		assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	})

	t.Run("duplicate check is case-insensitive", func(t *testing.T) {
		svc := newTestService(t, time.Hour)

		_, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		in := validUserInput()
		in.Username = "ALICE"
		_, err = svc.Register(ctx, in)
		assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	})
}

func TestServiceLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials succeed", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		_, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		result, err := svc.Login(ctx, "alice", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, "alice", result.Principal.Username)
		assert.NotEmpty(t, result.SessionToken)
		assert.NotEmpty(t, result.BearerToken)
	})

	t.Run("empty credentials fail before any lookup", func(t *testing.T) {
		svc := newTestService(t, time.Hour)

		_, err := svc.Login(ctx, "", "hunter22")
		assert.ErrorIs(t, err, auth.ErrMissingCredentials)

		_, err = svc.Login(ctx, "alice", "")
		assert.ErrorIs(t, err, auth.ErrMissingCredentials)
	})

	t.Run("unknown user and wrong password are indistinguishable", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		_, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		_, unknownErr := svc.Login(ctx, "nobody", "hunter22")
		_, wrongErr := svc.Login(ctx, "alice", "wrongpassword")

		assert.ErrorIs(t, unknownErr, auth.ErrInvalidCredentials)
		assert.ErrorIs(t, wrongErr, auth.ErrInvalidCredentials)
		assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	})

	t.Run("each login creates an independent session", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		_, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		first, err := svc.Login(ctx, "alice", "hunter22")
		require.NoError(t, err)
		second, err := svc.Login(ctx, "alice", "hunter22")
		require.NoError(t, err)

		assert.NotEqual(t, first.SessionToken, second.SessionToken)

		// Dropping one session does not touch the other.
		require.NoError(t, svc.Logout(ctx, first.Session.ID))
		_, _, err = svc.ResolveSession(ctx, second.SessionToken)
		assert.NoError(t, err)
	})
}

func TestServiceLogout(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	result, err := svc.Register(ctx, validUserInput())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.Session.ID))

	t.Run("destroyed session never re-authorizes", func(t *testing.T) {
		_, _, err := svc.ResolveSession(ctx, result.SessionToken)
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})

	t.Run("logout of unknown session fails", func(t *testing.T) {
		assert.Error(t, svc.Logout(ctx, ulid.Make()))
	})

	t.Run("bearer token outlives the session", func(t *testing.T) {
		claims, err := svc.VerifyToken(result.BearerToken)
		require.NoError(t, err)
		assert.Equal(t, result.Principal.ID, claims.Subject)
	})
}

func TestServiceFetchByID(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	result, err := svc.Register(ctx, validBusinessInput())
	require.NoError(t, err)

	t.Run("returns the secret-free view", func(t *testing.T) {
		view, err := svc.FetchByID(ctx, result.Principal.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.KindBusiness, view.Kind)
		assert.Equal(t, "acme", view.Username)
		require.NotNil(t, view.Business)
		assert.Equal(t, "Acme Corp", view.Business.CompanyName)
	})

	t.Run("unknown ID returns not found", func(t *testing.T) {
		_, err := svc.FetchByID(ctx, ulid.Make().String())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("unparseable ID returns not found", func(t *testing.T) {
		_, err := svc.FetchByID(ctx, "not-a-ulid")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestServiceChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	result, err := svc.Register(ctx, validUserInput())
	require.NoError(t, err)
	id, err := ulid.Parse(result.Principal.ID)
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, id, "newpassword"))

	t.Run("old password stops working", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "hunter22")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("new password works", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "newpassword")
		assert.NoError(t, err)
	})

	t.Run("empty password rejected", func(t *testing.T) {
		assert.ErrorIs(t, svc.ChangePassword(ctx, id, ""), auth.ErrValidation)
	})

	t.Run("unknown principal returns not found", func(t *testing.T) {
		assert.ErrorIs(t, svc.ChangePassword(ctx, ulid.Make(), "whatever"), auth.ErrNotFound)
	})
}

func TestServiceValidateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("empty token fails", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		_, err := svc.ValidateSession(ctx, "")
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})

	t.Run("unknown token fails", func(t *testing.T) {
		svc := newTestService(t, time.Hour)
		_, err := svc.ValidateSession(ctx, "deadbeef")
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})

	t.Run("expired session fails", func(t *testing.T) {
		svc := newTestService(t, 10*time.Millisecond)
		result, err := svc.Register(ctx, validUserInput())
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		_, err = svc.ValidateSession(ctx, result.SessionToken)
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})
}

func TestServiceVerifyToken(t *testing.T) {
	svc := newTestService(t, time.Hour)

	t.Run("missing token", func(t *testing.T) {
		_, err := svc.VerifyToken("")
		assert.ErrorIs(t, err, auth.ErrTokenMissing)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.VerifyToken("garbage")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

// TestAccountLifecycle walks one account through the full arc: register,
// log out, log back in, use both guard paths, and leave again.
func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	registered, err := svc.Register(ctx, validUserInput())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, registered.Session.ID))

	loggedIn, err := svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)

	// Session guard path.
	principal, session, err := svc.ResolveSession(ctx, loggedIn.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username)

	// Token guard path.
	claims, err := svc.VerifyToken(loggedIn.BearerToken)
	require.NoError(t, err)
	assert.Equal(t, principal.ID.String(), claims.Subject)

	require.NoError(t, svc.Logout(ctx, session.ID))
	_, _, err = svc.ResolveSession(ctx, loggedIn.SessionToken)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}
