// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-form/models"
	"github.com/danielhkuo/quickly-form/testutil"
)

func login(t *testing.T, h *AuthHandler, email, password string) models.LoginResponse {
	t.Helper()
	req := testutil.MakeRequest("POST", "/auth/login", models.LoginRequest{Email: email, Password: password}, nil)
	w := httptest.NewRecorder()
	h.Login(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	return testutil.AssertData[models.LoginResponse](t, w)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)

	req := testutil.MakeRequest("POST", "/auth/register", models.RegisterRequest{
		Email:    "  Ada@Example.com ",
		Password: "secret1",
	}, nil)
	w := httptest.NewRecorder()
	h.Register(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)
	user := testutil.AssertData[models.User](t, w)
	if user.ID == 0 {
		t.Error("Expected user id")
	}
	if user.Email != "ada@example.com" {
		t.Errorf("Expected normalized email, got %q", user.Email)
	}
	if user.Role != "user" {
		t.Errorf("Expected role user, got %q", user.Role)
	}

	// Same address with different case
	req = testutil.MakeRequest("POST", "/auth/register", models.RegisterRequest{
		Email:    "ADA@example.com",
		Password: "secret1",
	}, nil)
	w = httptest.NewRecorder()
	h.Register(w, req)

	testutil.AssertStatus(t, w, http.StatusConflict)
	testutil.AssertErrorMessage(t, w, "user already exists")
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)

	req := testutil.MakeRequest("POST", "/auth/register", models.RegisterRequest{
		Email:    "not-an-email",
		Password: "short",
	}, nil)
	w := httptest.NewRecorder()
	h.Register(w, req)

	testutil.AssertStatus(t, w, http.StatusBadRequest)

	var resp models.ValidationErrorResponse
	testutil.AssertJSON(t, w, &resp)
	fields := map[string]string{}
	for _, fe := range resp.Errors {
		fields[fe.Field] = fe.Message
	}
	if fields["email"] != "must be a valid email address" {
		t.Errorf("email error = %q", fields["email"])
	}
	if fields["password"] != "must be at least 6 characters" {
		t.Errorf("password error = %q", fields["password"])
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)
	userID, _ := env.user(t, "ada@example.com")

	resp := login(t, h, " ADA@example.com  ", testutil.TestPassword)

	if resp.User.ID != userID {
		t.Errorf("Expected user %d, got %d", userID, resp.User.ID)
	}
	if resp.RefreshToken == "" {
		t.Error("Expected refresh token")
	}

	claims, err := env.issuer.ParseAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("Access token rejected: %v", err)
	}
	if claims.Email != "ada@example.com" {
		t.Errorf("Expected email claim, got %q", claims.Email)
	}

	if n := countRows(t, env.db, "SELECT COUNT(*) FROM refresh_token WHERE user_id = $1", userID); n != 1 {
		t.Errorf("Expected 1 stored refresh token, got %d", n)
	}
}

func TestLoginRejects(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)
	env.user(t, "ada@example.com")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ada@example.com", "wrong-password"},
		{"unknown user", "bob@example.com", testutil.TestPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/auth/login", models.LoginRequest{
				Email:    tt.email,
				Password: tt.password,
			}, nil)
			w := httptest.NewRecorder()
			h.Login(w, req)

			testutil.AssertStatus(t, w, http.StatusUnauthorized)
			testutil.AssertErrorMessage(t, w, "Invalid credentials")
		})
	}
}

func TestLoginInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)

	req := httptest.NewRequest("POST", "/auth/login", nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	testutil.AssertStatus(t, w, http.StatusBadRequest)
	testutil.AssertErrorMessage(t, w, "Invalid JSON")
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)
	env.user(t, "ada@example.com")
	first := login(t, h, "ada@example.com", testutil.TestPassword)

	req := testutil.MakeRequest("POST", "/auth/refresh", models.RefreshTokenRequest{RefreshToken: first.RefreshToken}, nil)
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	rotated := testutil.AssertData[models.RefreshTokenResponse](t, w)
	if rotated.AccessToken == "" || rotated.RefreshToken == "" {
		t.Fatalf("Expected both tokens, got %+v", rotated)
	}
	if rotated.RefreshToken == first.RefreshToken {
		t.Error("Refresh token was not rotated")
	}

	// The old token is revoked
	req = testutil.MakeRequest("POST", "/auth/refresh", models.RefreshTokenRequest{RefreshToken: first.RefreshToken}, nil)
	w = httptest.NewRecorder()
	h.Refresh(w, req)

	testutil.AssertStatus(t, w, http.StatusUnauthorized)
	testutil.AssertErrorMessage(t, w, "Invalid refresh token")
}

func TestRefreshRejects(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)
	env.user(t, "ada@example.com")
	session := login(t, h, "ada@example.com", testutil.TestPassword)

	t.Run("unknown token", func(t *testing.T) {
		req := testutil.MakeRequest("POST", "/auth/refresh", models.RefreshTokenRequest{RefreshToken: "nope"}, nil)
		w := httptest.NewRecorder()
		h.Refresh(w, req)
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("expired token", func(t *testing.T) {
		env.issuer.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
		defer env.issuer.SetClock(time.Now)

		req := testutil.MakeRequest("POST", "/auth/refresh", models.RefreshTokenRequest{RefreshToken: session.RefreshToken}, nil)
		w := httptest.NewRecorder()
		h.Refresh(w, req)
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
		testutil.AssertErrorMessage(t, w, "Invalid refresh token")
	})
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.db, env.issuer)
	env.user(t, "ada@example.com")
	session := login(t, h, "ada@example.com", testutil.TestPassword)

	req := testutil.MakeRequest("POST", "/auth/logout", models.LogoutRequest{RefreshToken: session.RefreshToken}, nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	req = testutil.MakeRequest("POST", "/auth/refresh", models.RefreshTokenRequest{RefreshToken: session.RefreshToken}, nil)
	w = httptest.NewRecorder()
	h.Refresh(w, req)
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	// Logging out twice is not an error
	req = testutil.MakeRequest("POST", "/auth/logout", models.LogoutRequest{RefreshToken: session.RefreshToken}, nil)
	w = httptest.NewRecorder()
	h.Logout(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
}
