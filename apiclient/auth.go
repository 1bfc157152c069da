// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package apiclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielhkuo/quickly-form/models"
)

// Login signs in and stores the identity and tokens in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.call(ctx, http.MethodPost, "/auth/login", models.LoginRequest{
		Email:    email,
		Password: password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}

	if err := c.session.SignIn(resp.User, resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, err
	}
	c.logger.Info("logged in", "user_id", resp.User.ID, "email", resp.User.Email)
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := c.call(ctx, http.MethodPost, "/auth/register", models.RegisterRequest{
		Email:    email,
		Password: password,
	}, &user, false)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the refresh token and clears the session. The local session
// is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.session.RefreshToken()
	var callErr error
	if refresh != "" {
		callErr = c.call(ctx, http.MethodPost, "/auth/logout", models.LogoutRequest{
			RefreshToken: refresh,
		}, nil, false)
	}

	if err := c.session.Clear(); err != nil {
		return errors.Join(callErr, err)
	}
	return callErr
}

// Refresh exchanges the refresh token for a new access token. On failure the
// session is cleared and an ErrAuth error is returned; the user has to log in
// again.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	refresh := c.session.RefreshToken()
	if refresh == "" {
		c.clearSession()
		return newAuthError("no refresh token available, please log in again", nil)
	}

	var resp models.RefreshTokenResponse
	err := c.call(ctx, http.MethodPost, "/auth/refresh", models.RefreshTokenRequest{
		RefreshToken: refresh,
	}, &resp, false)
	if err != nil {
		if errors.Is(err, ErrNetwork) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.clearSession()
		return newAuthError("session expired, please log in again", err)
	}
	if resp.AccessToken == "" {
		c.clearSession()
		return newAuthError("refresh returned no access token, please log in again", nil)
	}

	if err := c.session.UpdateTokens(resp.AccessToken, resp.RefreshToken); err != nil {
		return err
	}
	c.logger.Debug("access token refreshed")
	return nil
}

func (c *Client) clearSession() {
	if err := c.session.Clear(); err != nil {
		c.logger.Warn("failed to clear session", "error", err)
	}
}
