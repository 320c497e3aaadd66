// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the bearer token validity window when config does not
// override it. The unit is explicit: tokens live for 24 hours.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the signed claim bundle carried by a bearer token: the subject
// kind and ID plus the secret-free principal snapshot taken at issuance.
// Verification never consults the credential store.
type Claims struct {
	jwt.RegisteredClaims
	Kind      Kind `json:"kind"`
	Principal View `json:"principal"`
}

// TokenIssuer signs and verifies time-boxed bearer tokens. The signing
// secret is process-wide configuration loaded once at startup; rotating it
// invalidates every outstanding token.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_SECRET_MISSING").Errorf("signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl}, nil
}

// Issue signs a token asserting the principal's identity. The embedded
// snapshot is the secret-free view; the hash never enters the token.
func (i *TokenIssuer) Issue(p *Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Kind:      p.Kind,
		Principal: p.View(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a token string. Malformed tokens, bad
// signatures, and expired tokens all yield ErrInvalidToken; verification
// is a pure function of the token and the secret.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	if !token.Valid {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	return claims, nil
}
