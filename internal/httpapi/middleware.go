// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session"

// AccessTokenHeader carries the signed bearer token. Authorization with a
// Bearer prefix is accepted as a fallback.
const AccessTokenHeader = "Access-Token"

type contextKey string

const (
	principalContextKey contextKey = "principal"
	sessionContextKey   contextKey = "session"
	claimsContextKey    contextKey = "claims"
)

// PrincipalFromContext returns the principal resolved by SessionGuard.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*auth.Principal)
	return p, ok
}

// SessionFromContext returns the session resolved by SessionGuard.
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*auth.Session)
	return s, ok
}

// ClaimsFromContext returns the claims verified by TokenGuard.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return c, ok
}

// SessionGuard admits only requests carrying a valid, unexpired session
// cookie. The resolved principal and session are placed on the request
// context for the handler.
func SessionGuard(svc *auth.Service, logger *slog.Logger, metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				metrics.GuardDenialsTotal.WithLabelValues("session").Inc()
				writeError(w, logger, auth.ErrNotAuthenticated)
				return
			}

			principal, session, err := svc.ResolveSession(r.Context(), cookie.Value)
			if err != nil {
				metrics.GuardDenialsTotal.WithLabelValues("session").Inc()
				writeError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			ctx = context.WithValue(ctx, sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenGuard admits only requests carrying a verifiable bearer token, read
// from the Access-Token header or an Authorization Bearer value. Verified
// claims are placed on the request context; no store lookup happens here.
func TokenGuard(svc *auth.Service, logger *slog.Logger, metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := svc.VerifyToken(bearerToken(r))
			if err != nil {
				metrics.GuardDenialsTotal.WithLabelValues("token").Inc()
				writeError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if token := r.Header.Get(AccessTokenHeader); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// requestLogger emits one line per request with method, path, status, and
// latency.
func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}

// recoverer converts a handler panic into a 500 instead of killing the
// connection.
func recoverer(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "handler panic",
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					writeJSON(w, http.StatusInternalServerError,
						envelope{Status: false, Message: "internal error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
