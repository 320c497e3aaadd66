// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// Sentinel errors for typed outcomes. Callers match with errors.Is; the
// HTTP layer maps each to a status code without exposing internals.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when registration input is missing or
	// malformed. The message is deliberately field-agnostic.
	ErrValidation = errors.New("all required fields must be provided")

	// ErrUsernameTaken is returned when a username already exists,
	// regardless of principal kind.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrMissingCredentials is returned when login is attempted without a
	// username or password.
	ErrMissingCredentials = errors.New("username and password are required")

	// ErrInvalidCredentials covers both unknown username and wrong
	// password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("username or password is wrong")

	// ErrNotAuthenticated is returned by the session guard when no valid
	// session resolves to a live principal.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrTokenMissing is returned by the token guard when the request
	// carries no bearer token.
	ErrTokenMissing = errors.New("token was not provided")

	// ErrInvalidToken is returned when a bearer token is malformed,
	// expired, or signed with the wrong secret.
	ErrInvalidToken = errors.New("invalid token")
)
