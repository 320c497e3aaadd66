// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	svc        *auth.Service
	logger     *slog.Logger
	metrics    *observability.Metrics
	sessionTTL time.Duration
}

// NewHandler creates a Handler. sessionTTL controls the lifetime of the
// session cookie and should match the TTL the service was built with.
func NewHandler(svc *auth.Service, logger *slog.Logger, metrics *observability.Metrics, sessionTTL time.Duration) *Handler {
	if sessionTTL <= 0 {
		sessionTTL = auth.DefaultSessionTTL
	}
	return &Handler{
		svc:        svc,
		logger:     logger,
		metrics:    metrics,
		sessionTTL: sessionTTL,
	}
}

// registerRequest mirrors the flat registration body: shared credential
// fields plus the union of both profile shapes. kind decides which profile
// fields are read.
type registerRequest struct {
	Kind     auth.Kind `json:"kind"`
	Username string    `json:"username"`
	Password string    `json:"password"`
	Email    string    `json:"email"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Gender    string `json:"gender"`
	Height    string `json:"height"`
	Age       int    `json:"age"`
	Race      string `json:"race"`

	CompanyName  string `json:"companyName"`
	BusinessLink string `json:"businessLink"`

	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

func (r registerRequest) toInput() auth.RegisterInput {
	in := auth.RegisterInput{
		Kind:     r.Kind,
		Username: r.Username,
		Password: r.Password,
		Email:    r.Email,
	}
	switch r.Kind {
	case auth.KindUser:
		in.User = &auth.UserProfile{
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Gender:    r.Gender,
			Height:    r.Height,
			Age:       r.Age,
			Race:      r.Race,
			City:      r.City,
			State:     r.State,
			Country:   r.Country,
		}
	case auth.KindBusiness:
		in.Business = &auth.BusinessProfile{
			CompanyName:  r.CompanyName,
			City:         r.City,
			State:        r.State,
			Country:      r.Country,
			BusinessLink: r.BusinessLink,
		}
	}
	return in
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, auth.ErrValidation)
		return
	}

	result, err := h.svc.Register(r.Context(), req.toInput())
	if err != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(string(req.Kind), "error").Inc()
		writeError(w, h.logger, err)
		return
	}
	h.metrics.RegistrationsTotal.WithLabelValues(string(req.Kind), "ok").Inc()

	h.setSessionCookie(w, result.SessionToken)
	writeJSON(w, http.StatusCreated, envelope{
		Status:    true,
		Message:   "registration successful",
		Principal: &result.Principal,
		Token:     result.BearerToken,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, auth.ErrMissingCredentials)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.metrics.LoginsTotal.WithLabelValues("error").Inc()
		writeError(w, h.logger, err)
		return
	}
	h.metrics.LoginsTotal.WithLabelValues("ok").Inc()

	h.setSessionCookie(w, result.SessionToken)
	writeJSON(w, http.StatusOK, envelope{
		Status:    true,
		Message:   "login successful",
		Principal: &result.Principal,
		Token:     result.BearerToken,
	})
}

// handleLogout runs behind SessionGuard, so the session is always present on
// the context here.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, auth.ErrNotAuthenticated)
		return
	}

	if err := h.svc.Logout(r.Context(), session.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, envelope{Status: true, Message: "logged out"})
}

// handleFetch runs behind TokenGuard and looks the principal up fresh from
// the store, so it reflects changes made after the token was issued.
func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.FetchByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Principal: &view})
}

// handleMe runs behind TokenGuard and answers from the claims snapshot
// embedded in the token, without touching the store.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, auth.ErrTokenMissing)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Status: true,
		Claims: &authClaims{
			Subject:   claims.Subject,
			Kind:      claims.Kind,
			Principal: claims.Principal,
		},
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
