// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the form emulator.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg)

Tests that need to mint tokens or move the clock build the issuer
themselves:

	mux := router.NewRouterWithIssuer(db, issuer)

# Endpoints

All API routes live under APIPrefix (/api/v1).

Health:

	GET /health

Authentication (public):

	POST /auth/register - Create account
	POST /auth/login    - Issue access and refresh tokens
	POST /auth/refresh  - Rotate refresh token
	POST /auth/logout   - Revoke refresh token

Forms (bearer token):

	POST   /forms               - Create form
	GET    /forms/user          - Forms owned by the caller
	GET    /forms/{id}          - Owner view of a form
	PUT    /forms/{id}          - Edit form (owner)
	DELETE /forms/{id}          - Delete form (owner)
	GET    /forms/{id}/voters   - Respondents and their status (owner)
	GET    /forms/{id}/public   - Form with questions and options
	GET    /forms/{id}/hasvoted - Submission status by ?email=
	POST   /forms/{id}/submit   - Submit answers

Drafts (bearer token):

	POST   /drafts          - Save draft
	GET    /drafts/{formId} - Get draft
	DELETE /drafts/{formId} - Delete draft

Dashboard (bearer token):

	GET    /dashboard                        - Statistics and forms
	GET    /dashboard/activities            - Paged history by ?status=&page=&per_page=
	DELETE /dashboard/forms/{formId}/status - Forget participation

Every route is wrapped with middleware.WithLogging; protected routes also
go through middleware.RequireAuth.
*/
package router
