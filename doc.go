// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the quickly-form command.

quickly-form fills in forms from the terminal: it loads a form, resumes a
saved draft, autosaves answers while the user types and submits them once
every question is answered. The emulator subcommand serves the same backend
contract locally.

# Usage

	quickly-form login -email me@example.com
	quickly-form fill 12
	quickly-form fill -answers answers.json 12
	quickly-form status 12
	quickly-form draft show 12
	quickly-form dashboard

Run the backend:

	JWT_SECRET_KEY=dev quickly-form emulator -p 8080

# Configuration

A .env file in the working directory is loaded first. See package cliparse
for the flags and environment variables of each command.

# Architecture

Client:

  - apiclient: HTTP client with token refresh and retries
  - session: signed-in identity persisted to disk
  - answers: answer store, validation and wire formatting
  - autosave: debounced draft saving
  - submission: the fill flow state machine
  - console: terminal prompts

Emulator:

  - handlers: HTTP request handlers
  - router: Route definitions using Go 1.22+ routing
  - middleware: auth, CORS, logging, JSON helpers
  - auth: JWTs, refresh tokens and passwords
  - db: connection and schema

Shared:

  - models: Request/response types
  - cliparse: Configuration parsing
*/
package main
