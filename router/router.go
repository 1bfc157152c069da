// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/quickly-form/auth"
	"github.com/danielhkuo/quickly-form/cliparse"
	"github.com/danielhkuo/quickly-form/handlers"
	"github.com/danielhkuo/quickly-form/middleware"
)

// APIPrefix is the path every API route is mounted under.
const APIPrefix = "/api/v1"

func NewRouter(db *sql.DB, cfg cliparse.EmulatorConfig) *http.ServeMux {
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	return NewRouterWithIssuer(db, issuer)
}

// NewRouterWithIssuer builds the routes around an existing issuer, so tests
// can mint tokens the router accepts.
func NewRouterWithIssuer(db *sql.DB, issuer *auth.TokenIssuer) *http.ServeMux {
	mux := http.NewServeMux()
	authed := middleware.RequireAuth(issuer)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, issuer)
	formHandler := handlers.NewFormHandler(db, issuer.Now)
	draftHandler := handlers.NewDraftHandler(db, issuer.Now)
	dashboardHandler := handlers.NewDashboardHandler(db, issuer.Now)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Authentication (public)
	mux.HandleFunc("POST "+APIPrefix+"/auth/register", middleware.WithLogging(authHandler.Register))
	mux.HandleFunc("POST "+APIPrefix+"/auth/login", middleware.WithLogging(authHandler.Login))
	mux.HandleFunc("POST "+APIPrefix+"/auth/refresh", middleware.WithLogging(authHandler.Refresh))
	mux.HandleFunc("POST "+APIPrefix+"/auth/logout", middleware.WithLogging(authHandler.Logout))

	// Forms
	mux.HandleFunc("POST "+APIPrefix+"/forms", middleware.WithLogging(authed(formHandler.CreateForm)))
	mux.HandleFunc("GET "+APIPrefix+"/forms/user", middleware.WithLogging(authed(formHandler.GetUserForms)))
	mux.HandleFunc("GET "+APIPrefix+"/forms/{id}", middleware.WithLogging(authed(formHandler.GetForm)))
	mux.HandleFunc("PUT "+APIPrefix+"/forms/{id}", middleware.WithLogging(authed(formHandler.UpdateForm)))
	mux.HandleFunc("DELETE "+APIPrefix+"/forms/{id}", middleware.WithLogging(authed(formHandler.DeleteForm)))
	mux.HandleFunc("GET "+APIPrefix+"/forms/{id}/voters", middleware.WithLogging(authed(formHandler.GetFormVoters)))
	mux.HandleFunc("GET "+APIPrefix+"/forms/{id}/public", middleware.WithLogging(authed(formHandler.GetPublicForm)))
	mux.HandleFunc("GET "+APIPrefix+"/forms/{id}/hasvoted", middleware.WithLogging(authed(formHandler.HasVoted)))
	mux.HandleFunc("POST "+APIPrefix+"/forms/{id}/submit", middleware.WithLogging(authed(formHandler.SubmitForm)))

	// Drafts
	mux.HandleFunc("POST "+APIPrefix+"/drafts", middleware.WithLogging(authed(draftHandler.SaveDraft)))
	mux.HandleFunc("GET "+APIPrefix+"/drafts/{formId}", middleware.WithLogging(authed(draftHandler.GetDraft)))
	mux.HandleFunc("DELETE "+APIPrefix+"/drafts/{formId}", middleware.WithLogging(authed(draftHandler.DeleteDraft)))

	// Dashboard
	mux.HandleFunc("GET "+APIPrefix+"/dashboard", middleware.WithLogging(authed(dashboardHandler.GetDashboard)))
	mux.HandleFunc("GET "+APIPrefix+"/dashboard/activities", middleware.WithLogging(authed(dashboardHandler.GetActivities)))
	mux.HandleFunc("DELETE "+APIPrefix+"/dashboard/forms/{formId}/status",
		middleware.WithLogging(authed(dashboardHandler.DeleteParticipation)))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quickly-form API v1"))
	})

	return mux
}
