// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package redis implements auth.SessionRepository on Redis. Session records
// carry their TTL as key expiry, so DeleteExpired is mostly a no-op safety
// valve; Redis evicts on its own.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

const keyPrefix = "gatehouse"

// sessionKey returns the Redis key for a session record.
func sessionKey(id ulid.ULID) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

// tokenIndexKey returns the Redis key for the token_hash -> session_id index.
func tokenIndexKey(tokenHash string) string {
	return fmt.Sprintf("%s:idx:token:%s", keyPrefix, tokenHash)
}

// principalIndexKey returns the Redis key for the SET of a principal's sessions.
func principalIndexKey(principalID ulid.ULID) string {
	return fmt.Sprintf("%s:idx:principal:%s", keyPrefix, principalID)
}

// SessionRepository implements auth.SessionRepository using Redis.
type SessionRepository struct {
	client *redis.Client
}

// New creates a SessionRepository from a Redis URL and verifies the
// connection.
func New(ctx context.Context, url string) (*SessionRepository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}

	return &SessionRepository{client: client}, nil
}

// NewWithClient creates a SessionRepository with an existing client
// (for testing).
func NewWithClient(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Close closes the Redis connection.
func (r *SessionRepository) Close() error {
	return r.client.Close() //nolint:wrapcheck // io.Closer passthrough
}

// Create stores a new session with key expiry matching the session TTL.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "marshal session").
			Wrap(err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("session already expired")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, ttl)
	pipe.Set(ctx, tokenIndexKey(session.TokenHash), session.ID.String(), ttl)
	pipe.SAdd(ctx, principalIndexKey(session.PrincipalID), session.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "pipeline exec").
			With("principal_id", session.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	idStr, err := r.client.Get(ctx, tokenIndexKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get token index").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}
	return r.getByID(ctx, id)
}

// UpdateLastSeen updates the LastSeenAt timestamp, preserving key expiry.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	session, err := r.getByID(ctx, id)
	if err != nil {
		return err
	}
	session.LastSeenAt = lastSeen

	data, err := json.Marshal(session)
	if err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").
			With("operation", "marshal session").
			Wrap(err)
	}
	if err := r.client.Set(ctx, sessionKey(id), data, redis.KeepTTL).Err(); err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	session, err := r.getByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, tokenIndexKey(session.TokenHash))
	pipe.SRem(ctx, principalIndexKey(session.PrincipalID), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteByPrincipal removes all sessions for a principal.
func (r *SessionRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error {
	idStrs, err := r.client.SMembers(ctx, principalIndexKey(principalID)).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_BY_PRINCIPAL_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}

	for _, idStr := range idStrs {
		id, parseErr := ulid.Parse(idStr)
		if parseErr != nil {
			continue
		}
		if err := r.Delete(ctx, id); err != nil && !errors.Is(err, auth.ErrNotFound) {
			return err
		}
	}

	if err := r.client.Del(ctx, principalIndexKey(principalID)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_BY_PRINCIPAL_FAILED").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired prunes index entries whose session keys have been evicted.
// Redis key expiry does the real work.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

// getByID fetches and unmarshals one session record.
func (r *SessionRepository) getByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.Code("SESSION_GET_FAILED").
			With("id", id.String()).
			Wrap(err)
	}

	session := &auth.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, oops.Code("SESSION_INVALID_RECORD").
			With("id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
