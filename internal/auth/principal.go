// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Kind discriminates the two principal variants.
type Kind string

// Principal kinds.
const (
	KindUser     Kind = "user"
	KindBusiness Kind = "business"
)

// Valid reports whether k is a known principal kind.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindBusiness
}

// UserProfile holds the variant-specific fields of an individual account.
// All fields are required at registration.
type UserProfile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Gender    string `json:"gender"`
	Height    string `json:"height"`
	Age       int    `json:"age"`
	Race      string `json:"race"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country"`
}

// BusinessProfile holds the variant-specific fields of a business account.
// Only CompanyName is required; location and link are optional.
type BusinessProfile struct {
	CompanyName  string `json:"companyName"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`
	BusinessLink string `json:"businessLink,omitempty"`
}

// Principal is an authenticatable entity, either a user or a business.
// Both kinds share one username namespace. PasswordHash is never included
// in any serialized form; callers hand out View instead.
type Principal struct {
	ID           ulid.ULID
	Kind         Kind
	Username     string
	Email        string
	PasswordHash string `json:"-"`
	User         *UserProfile
	Business     *BusinessProfile
	CreatedAt    time.Time
}

// View is the secret-free, outward-facing form of a Principal.
type View struct {
	ID       string           `json:"id"`
	Kind     Kind             `json:"kind"`
	Username string           `json:"username"`
	Email    string           `json:"email"`
	User     *UserProfile     `json:"user,omitempty"`
	Business *BusinessProfile `json:"business,omitempty"`
	Created  time.Time        `json:"created"`
}

// View returns the externally serializable form of the principal,
// with the password hash removed.
func (p *Principal) View() View {
	return View{
		ID:       p.ID.String(),
		Kind:     p.Kind,
		Username: p.Username,
		Email:    p.Email,
		User:     p.User,
		Business: p.Business,
		Created:  p.CreatedAt,
	}
}

// RegisterInput carries the raw registration fields for either kind.
// Password is plaintext here and only here; NewPrincipal hashes it exactly
// once and discards it.
type RegisterInput struct {
	Kind     Kind
	Username string
	Password string
	Email    string
	User     *UserProfile
	Business *BusinessProfile
}

// Validate checks that every required field for the input's kind is
// present. It reports ErrValidation without naming the missing field.
func (in RegisterInput) Validate() error {
	if !in.Kind.Valid() {
		return ErrValidation
	}
	if in.Username == "" || in.Password == "" || in.Email == "" {
		return ErrValidation
	}

	switch in.Kind {
	case KindUser:
		u := in.User
		if u == nil {
			return ErrValidation
		}
		if u.FirstName == "" || u.LastName == "" || u.Gender == "" ||
			u.Height == "" || u.Age == 0 || u.Race == "" ||
			u.City == "" || u.State == "" || u.Country == "" {
			return ErrValidation
		}
	case KindBusiness:
		if in.Business == nil || in.Business.CompanyName == "" {
			return ErrValidation
		}
	}
	return nil
}

// NewPrincipal validates the input, hashes the password, and returns a
// principal ready for persistence. The plaintext password is read exactly
// once, by the hasher.
func NewPrincipal(in RegisterInput, hasher PasswordHasher) (*Principal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	p := &Principal{
		ID:           ulid.Make(),
		Kind:         in.Kind,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	switch in.Kind {
	case KindUser:
		p.User = in.User
	case KindBusiness:
		p.Business = in.Business
	}
	return p, nil
}

// PrincipalRepository manages principal persistence.
type PrincipalRepository interface {
	// Create stores a new principal. The insert is atomic with respect to
	// concurrent callers racing on the same username: exactly one wins and
	// the rest receive ErrUsernameTaken.
	Create(ctx context.Context, principal *Principal) error

	// GetByID retrieves a principal by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Principal, error)

	// GetByUsername retrieves a principal by username (case-insensitive),
	// searching both kinds.
	GetByUsername(ctx context.Context, username string) (*Principal, error)

	// UpdatePassword replaces only the password hash for a principal.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
