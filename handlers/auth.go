// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/quickly-form/auth"
	"github.com/danielhkuo/quickly-form/middleware"
	"github.com/danielhkuo/quickly-form/models"
)

type AuthHandler struct {
	db     *sql.DB
	issuer *auth.TokenIssuer
}

func NewAuthHandler(db *sql.DB, issuer *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{db: db, issuer: issuer}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}
	email := req.Email

	var exists bool
	err := h.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM app_user WHERE email = $1)
	`, email).Scan(&exists)
	if err != nil {
		slog.Error("failed to query user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if exists {
		middleware.ErrorResponse(w, http.StatusConflict, "user already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	user := models.User{Email: email, Role: "user"}
	err = h.db.QueryRow(`
		INSERT INTO app_user (email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, email, hash, user.Role, h.issuer.Now().UTC()).Scan(&user.ID)
	if err != nil {
		slog.Error("failed to insert user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	slog.Info("user registered", "user_id", user.ID)

	middleware.Success(w, http.StatusCreated, "register", user)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}

	var user models.User
	var hash string
	err := h.db.QueryRow(`
		SELECT id, email, role, password_hash FROM app_user WHERE email = $1
	`, req.Email).Scan(&user.ID, &user.Email, &user.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		slog.Error("failed to query user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := auth.CheckPassword(hash, req.Password); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	access, refresh, err := h.issuePair(h.db, user)
	if err != nil {
		slog.Error("failed to issue tokens", "error", err, "user_id", user.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to login")
		return
	}

	slog.Info("user logged in", "user_id", user.ID)

	middleware.Success(w, http.StatusOK, "login", models.LoginResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// Refresh handles POST /auth/refresh. The presented token is revoked and a
// new pair is returned.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	var user models.User
	var expiresAt time.Time
	var revokedAt sql.NullTime
	err = tx.QueryRow(`
		SELECT u.id, u.email, u.role, t.expires_at, t.revoked_at
		FROM refresh_token t
		JOIN app_user u ON u.id = t.user_id
		WHERE t.token = $1
	`, req.RefreshToken).Scan(&user.ID, &user.Email, &user.Role, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("failed to query refresh token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	now := h.issuer.Now().UTC()
	if revokedAt.Valid || !now.Before(expiresAt) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	if _, err := tx.Exec(`
		UPDATE refresh_token SET revoked_at = $2 WHERE token = $1
	`, req.RefreshToken, now); err != nil {
		slog.Error("failed to revoke refresh token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	access, refresh, err := h.issuePair(tx, user)
	if err != nil {
		slog.Error("failed to issue tokens", "error", err, "user_id", user.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to refresh")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit refresh", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	slog.Debug("refresh token rotated", "user_id", user.ID)

	middleware.Success(w, http.StatusOK, "refresh", models.RefreshTokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.LogoutRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}

	_, err := h.db.Exec(`
		UPDATE refresh_token SET revoked_at = $2
		WHERE token = $1 AND revoked_at IS NULL
	`, req.RefreshToken, h.issuer.Now().UTC())
	if err != nil {
		slog.Error("failed to revoke refresh token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to logout")
		return
	}

	middleware.Success(w, http.StatusOK, "logout", nil)
}

// issuePair signs an access token and stores a new refresh token through q.
func (h *AuthHandler) issuePair(q querier, user models.User) (string, string, error) {
	access, err := h.issuer.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}

	refresh, expiresAt := h.issuer.NewRefreshToken()
	_, err = q.Exec(`
		INSERT INTO refresh_token (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, refresh, user.ID, expiresAt.UTC())
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
