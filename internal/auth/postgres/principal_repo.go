// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// PrincipalRepository implements auth.PrincipalRepository using PostgreSQL.
// Username uniqueness is enforced by a unique index on LOWER(username), so
// concurrent registrations racing on one username resolve in the database:
// one insert wins, the rest surface auth.ErrUsernameTaken.
type PrincipalRepository struct {
	pool poolIface
}

// NewPrincipalRepository creates a new PrincipalRepository.
func NewPrincipalRepository(pool poolIface) *PrincipalRepository {
	return &PrincipalRepository{pool: pool}
}

// Create stores a new principal.
func (r *PrincipalRepository) Create(ctx context.Context, principal *auth.Principal) error {
	profileJSON, err := marshalProfile(principal)
	if err != nil {
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "marshal profile").
			Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO principals (id, kind, username, email, password_hash, profile, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		principal.ID.String(),
		string(principal.Kind),
		principal.Username,
		principal.Email,
		principal.PasswordHash,
		profileJSON,
		principal.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("PRINCIPAL_USERNAME_TAKEN").
				With("username", principal.Username).
				Wrap(auth.ErrUsernameTaken)
		}
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal").
			With("username", principal.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, username, email, password_hash, profile, created_at
		FROM principals
		WHERE id = $1
	`, id.String())

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_ID_FAILED").
			With("operation", "get principal by id").
			With("id", id.String()).
			Wrap(err)
	}
	return principal, nil
}

// GetByUsername retrieves a principal by username (case-insensitive),
// across both kinds.
func (r *PrincipalRepository) GetByUsername(ctx context.Context, username string) (*auth.Principal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, username, email, password_hash, profile, created_at
		FROM principals
		WHERE LOWER(username) = LOWER($1)
	`, username)

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_USERNAME_FAILED").
			With("operation", "get principal by username").
			With("username", username).
			Wrap(err)
	}
	return principal, nil
}

// UpdatePassword replaces only the password hash for a principal.
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE principals SET password_hash = $2
		WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("PRINCIPAL_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// marshalProfile serializes the kind-specific profile payload. The password
// hash lives in its own column and never enters the profile JSON.
func marshalProfile(principal *auth.Principal) ([]byte, error) {
	switch principal.Kind {
	case auth.KindUser:
		return json.Marshal(principal.User)
	case auth.KindBusiness:
		return json.Marshal(principal.Business)
	default:
		return nil, oops.Code("PRINCIPAL_INVALID_KIND").
			Errorf("unknown principal kind: %s", principal.Kind)
	}
}

// scanPrincipal scans a single row into a Principal.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPrincipal(row pgx.Row) (*auth.Principal, error) {
	var (
		idStr        string
		kindStr      string
		username     string
		email        string
		passwordHash string
		profileJSON  []byte
		createdAt    time.Time
	)

	err := row.Scan(&idStr, &kindStr, &username, &email, &passwordHash, &profileJSON, &createdAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("PRINCIPAL_SCAN_FAILED").
			With("operation", "scan principal").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("PRINCIPAL_INVALID_ID").
			With("operation", "parse principal id").
			With("id", idStr).
			Wrap(err)
	}

	principal := &auth.Principal{
		ID:           id,
		Kind:         auth.Kind(kindStr),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}

	switch principal.Kind {
	case auth.KindUser:
		profile := &auth.UserProfile{}
		if len(profileJSON) > 0 {
			if err := json.Unmarshal(profileJSON, profile); err != nil {
				return nil, oops.Code("PRINCIPAL_INVALID_PROFILE").
					With("operation", "unmarshal user profile").
					Wrap(err)
			}
		}
		principal.User = profile
	case auth.KindBusiness:
		profile := &auth.BusinessProfile{}
		if len(profileJSON) > 0 {
			if err := json.Unmarshal(profileJSON, profile); err != nil {
				return nil, oops.Code("PRINCIPAL_INVALID_PROFILE").
					With("operation", "unmarshal business profile").
					Wrap(err)
			}
		}
		principal.Business = profile
	default:
		return nil, oops.Code("PRINCIPAL_INVALID_KIND").
			Errorf("unknown principal kind: %s", kindStr)
	}

	return principal, nil
}

// Compile-time interface check.
var _ auth.PrincipalRepository = (*PrincipalRepository)(nil)
