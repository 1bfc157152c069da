// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs the request start at debug level and its completion with status,
request id and duration_ms.

# Authentication

RequireAuth verifies the bearer access token and stores the caller on the
request context:

	authed := middleware.RequireAuth(issuer)
	mux.HandleFunc("GET /api/v1/dashboard", middleware.WithLogging(authed(h.GetDashboard)))

	user, ok := middleware.UserFromContext(r.Context())

# CORS Middleware

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

# JSON Helpers

Write JSON responses:

	middleware.Success(w, http.StatusOK, "get-draft", draft)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

Decode and validate request bodies with go-playground/validator tags:

	var req models.SaveDraftRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}

BindJSON answers 400 "Invalid JSON" or a field error list itself.

# Client IP Extraction

Get the original client IP (handles X-Forwarded-For, X-Real-IP):

	ip := middleware.GetClientIP(r)
*/
package middleware
