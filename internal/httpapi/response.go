// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the auth service over HTTP: registration, login,
// logout, principal lookup, and the two access guards.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// envelope is the JSON response shape shared by every endpoint.
type envelope struct {
	Status    bool        `json:"status"`
	Message   string      `json:"message,omitempty"`
	Principal *auth.View  `json:"principal,omitempty"`
	Claims    *authClaims `json:"claims,omitempty"`
	Token     string      `json:"token,omitempty"`
}

// authClaims is the outward shape of verified bearer claims.
type authClaims struct {
	Subject   string    `json:"subject"`
	Kind      auth.Kind `json:"kind"`
	Principal auth.View `json:"principal"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client went away
	json.NewEncoder(w).Encode(body)
}

// writeError maps a service error to an HTTP response. Typed outcomes keep
// their message; anything else is an infrastructure failure, logged in full
// and surfaced as a generic 500 with no detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		errutil.LogError(logger, "request failed", err)
		message = "internal error"
	}
	writeJSON(w, status, envelope{Status: false, Message: message})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest, auth.ErrValidation.Error()
	case errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusBadRequest, auth.ErrMissingCredentials.Error()
	case errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusForbidden, auth.ErrUsernameTaken.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusForbidden, auth.ErrInvalidCredentials.Error()
	case errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusForbidden, auth.ErrNotAuthenticated.Error()
	case errors.Is(err, auth.ErrTokenMissing):
		return http.StatusUnauthorized, auth.ErrTokenMissing.Error()
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, auth.ErrInvalidToken.Error()
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, auth.ErrNotFound.Error()
	default:
		return http.StatusInternalServerError, ""
	}
}
