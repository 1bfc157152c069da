// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth issues and verifies the emulator's credentials.

# Access Tokens

Access tokens are HS256 JWTs carrying the user id as subject, the email
and an expiry:

	issuer := auth.NewTokenIssuer(secret, 15*time.Minute, 7*24*time.Hour)
	token, err := issuer.IssueAccessToken(user.ID, user.Email)
	claims, err := issuer.ParseAccessToken(token)

ParseAccessToken returns ErrExpiredToken for an expired token and
ErrInvalidToken for anything else it cannot verify.

# Refresh Tokens

Refresh tokens are random UUIDs stored server side with their expiry:

	token, expiresAt := issuer.NewRefreshToken()

# Clock

SetClock replaces time.Now for issuing and validating tokens. Handlers
share the same clock through issuer.Now so tests can move time forward.

# Passwords

	hash, err := auth.HashPassword(password)
	err := auth.CheckPassword(hash, password)

Hashes use bcrypt at BcryptCost.
*/
package auth
