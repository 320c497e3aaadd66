// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package memory implements the auth repositories with in-process maps.
// It backs tests and local development; the uniqueness guarantee of
// Create is the same conditional-insert-under-lock the SQL schema gives
// the Postgres implementation.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// PrincipalRepository implements auth.PrincipalRepository in memory.
type PrincipalRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*auth.Principal
	byUsername map[string]ulid.ULID // LOWER(username) -> id
}

// NewPrincipalRepository creates an empty in-memory principal repository.
func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{
		byID:       make(map[ulid.ULID]*auth.Principal),
		byUsername: make(map[string]ulid.ULID),
	}
}

// Create stores a new principal. The username check and insert happen under
// one lock, so concurrent registrations on the same username yield exactly
// one success.
func (r *PrincipalRepository) Create(_ context.Context, principal *auth.Principal) error {
	key := strings.ToLower(principal.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[key]; taken {
		return auth.ErrUsernameTaken
	}
	stored := clonePrincipal(principal)
	r.byID[stored.ID] = stored
	r.byUsername[key] = stored.ID
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	principal, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clonePrincipal(principal), nil
}

// GetByUsername retrieves a principal by username (case-insensitive).
func (r *PrincipalRepository) GetByUsername(_ context.Context, username string) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clonePrincipal(r.byID[id]), nil
}

// UpdatePassword replaces only the password hash for a principal.
func (r *PrincipalRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	principal, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	principal.PasswordHash = passwordHash
	return nil
}

// clonePrincipal copies a principal so callers never share mutable state
// with the store.
func clonePrincipal(p *auth.Principal) *auth.Principal {
	out := *p
	if p.User != nil {
		user := *p.User
		out.User = &user
	}
	if p.Business != nil {
		business := *p.Business
		out.Business = &business
	}
	return &out
}

// SessionRepository implements auth.SessionRepository in memory.
type SessionRepository struct {
	mu          sync.RWMutex
	byID        map[ulid.ULID]*auth.Session
	byTokenHash map[string]ulid.ULID
}

// NewSessionRepository creates an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byID:        make(map[ulid.ULID]*auth.Session),
		byTokenHash: make(map[string]ulid.ULID),
	}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *session
	r.byID[stored.ID] = &stored
	r.byTokenHash[stored.TokenHash] = stored.ID
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTokenHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	session := *r.byID[id]
	return &session, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	session.LastSeenAt = lastSeen
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(r.byTokenHash, session.TokenHash)
	delete(r.byID, id)
	return nil
}

// DeleteByPrincipal removes all sessions for a principal.
func (r *SessionRepository) DeleteByPrincipal(_ context.Context, principalID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, session := range r.byID {
		if session.PrincipalID == principalID {
			delete(r.byTokenHash, session.TokenHash)
			delete(r.byID, id)
		}
	}
	return nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var deleted int64
	for id, session := range r.byID {
		if now.After(session.ExpiresAt) {
			delete(r.byTokenHash, session.TokenHash)
			delete(r.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

// Compile-time interface checks.
var (
	_ auth.PrincipalRepository = (*PrincipalRepository)(nil)
	_ auth.SessionRepository   = (*SessionRepository)(nil)
)
