// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package session keeps the signed-in identity and tokens, persisted as a
// JSON file readable only by the current user.
package session
