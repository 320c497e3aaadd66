// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// NewRouter wires the endpoints. Register and login are open; logout sits
// behind the session guard; lookups sit behind the token guard.
func NewRouter(h *Handler, svc *auth.Service, metrics *observability.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverer(h.logger))
	r.Use(requestLogger(h.logger))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/principals", h.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/principals/login", h.handleLogin).Methods(http.MethodPost)

	sessioned := api.NewRoute().Subrouter()
	sessioned.Use(SessionGuard(svc, h.logger, metrics))
	sessioned.HandleFunc("/principals", h.handleLogout).Methods(http.MethodDelete)

	tokened := api.NewRoute().Subrouter()
	tokened.Use(TokenGuard(svc, h.logger, metrics))
	tokened.HandleFunc("/principals/{id}", h.handleFetch).Methods(http.MethodGet)
	tokened.HandleFunc("/me", h.handleMe).Methods(http.MethodGet)

	return r
}
