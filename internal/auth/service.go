// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is used when a principal doesn't exist to prevent timing
// attacks. We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service coordinates registration, login, logout, and lookups. Both
// Register and Login perform the same dual side effect: establish a
// server-side session and issue a bearer token.
type Service struct {
	principals PrincipalRepository
	sessions   SessionRepository
	hasher     PasswordHasher
	issuer     *TokenIssuer
	sessionTTL time.Duration
}

// Result bundles everything a successful register or login hands back: the
// secret-free view, the session with its plaintext cookie token, and the
// signed bearer token.
type Result struct {
	Principal    View
	Session      *Session
	SessionToken string
	BearerToken  string
}

// NewService creates a Service.
func NewService(principals PrincipalRepository, sessions SessionRepository, hasher PasswordHasher, issuer *TokenIssuer, sessionTTL time.Duration) (*Service, error) {
	if principals == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("principals repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("token issuer is required")
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{
		principals: principals,
		sessions:   sessions,
		hasher:     hasher,
		issuer:     issuer,
		sessionTTL: sessionTTL,
	}, nil
}

// Register validates the input, hashes the password, and creates the
// principal atomically with respect to username uniqueness. On success it
// establishes a session and issues a bearer token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	principal, err := NewPrincipal(in, s.hasher)
	if err != nil {
		return nil, err
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create principal").
			Wrap(err)
	}

	return s.establish(ctx, principal)
}

// Login verifies credentials and, on success, performs the same session and
// token issuance as Register. Unknown usernames and wrong passwords are
// indistinguishable to the caller, and verification runs against a dummy
// hash when the principal is absent to keep response time consistent.
func (s *Service) Login(ctx context.Context, username, password string) (*Result, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	principal, lookupErr := s.principals.GetByUsername(ctx, username)

	targetHash := dummyPasswordHash
	exists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get principal by username").
				Wrap(lookupErr)
		}
	} else {
		targetHash = principal.PasswordHash
		exists = true
	}

	// Fail closed: any verification error counts as a mismatch.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		valid = false
	}
	if !exists || !valid {
		return nil, ErrInvalidCredentials
	}

	return s.establish(ctx, principal)
}

// Logout destroys a session. A subsequent guard check against the same
// session fails with ErrNotAuthenticated.
func (s *Service) Logout(ctx context.Context, sessionID ulid.ULID) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// FetchByID returns the secret-free view of a principal.
func (s *Service) FetchByID(ctx context.Context, id string) (View, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return View{}, ErrNotFound
	}
	principal, err := s.principals.GetByID(ctx, parsed)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, oops.Code("AUTH_FETCH_FAILED").
			With("operation", "get principal by id").
			Wrap(err)
	}
	return principal.View(), nil
}

// ChangePassword re-hashes and re-saves the credential for a principal.
// This is the only mutation a principal supports after creation.
func (s *Service) ChangePassword(ctx context.Context, id ulid.ULID, newPassword string) error {
	if newPassword == "" {
		return ErrValidation
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.principals.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
			With("operation", "update password").
			Wrap(err)
	}
	return nil
}

// ValidateSession resolves a plaintext session token to a live session.
// Expired or unknown tokens fail; the LastSeenAt update is best effort.
func (s *Service) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	if session.IsExpired() {
		return nil, ErrNotAuthenticated
	}

	_ = s.sessions.UpdateLastSeen(ctx, session.ID, time.Now()) //nolint:errcheck // Best effort, validation succeeds regardless

	return session, nil
}

// ResolveSession is the session-guard predicate: it validates the token and
// resolves the bound principal from the store. A session pointing at a
// missing principal fails the same way as no session at all, which heals
// stale sessions.
func (s *Service) ResolveSession(ctx context.Context, token string) (*Principal, *Session, error) {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return nil, nil, ErrNotAuthenticated
		}
		return nil, nil, err
	}

	principal, err := s.principals.GetByID(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotAuthenticated
		}
		return nil, nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get principal by id").
			Wrap(err)
	}
	return principal, session, nil
}

// VerifyToken is the token-guard predicate. The decoded claims carry the
// snapshot embedded at issuance; no store lookup happens here.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}
	claims, err := s.issuer.Verify(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// establish creates the session record and signs the bearer token for a
// principal that just registered or logged in.
func (s *Service) establish(ctx context.Context, principal *Principal) (*Result, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_TOKEN_FAILED").Wrap(err)
	}

	session, err := NewSession(principal.ID, tokenHash, time.Now().Add(s.sessionTTL))
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	bearer, err := s.issuer.Issue(principal)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_ISSUE_FAILED").Wrap(err)
	}

	return &Result{
		Principal:    principal.View(),
		Session:      session,
		SessionToken: token,
		BearerToken:  bearer,
	}, nil
}
