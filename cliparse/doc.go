// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Environment

LoadDotEnv reads a .env file without overriding variables already set:

	if err := cliparse.LoadDotEnv(".env"); err != nil {
		return err
	}

# Client Commands

NewClientFlagSet registers the shared client flags; commands add their own
before parsing:

	fs, cfg := cliparse.NewClientFlagSet("fill")
	answers := fs.String("answers", "", "answers file")
	err := fs.Parse(args)
	err = cfg.ApplyEnv()

ParseClientFlags does the same for commands without extra flags.

	-api       QF_API_URL        (default http://localhost:8080/api/v1)
	-session   QF_SESSION_FILE   (default under the user config dir)
	-autosave  QF_AUTOSAVE_DELAY (default 2s)
	-timeout   QF_HTTP_TIMEOUT   (default 15s)
	-retries   QF_HTTP_RETRIES   (default 2)

# Emulator

	cfg, err := cliparse.ParseEmulatorFlags(args)

	-p           PORT              (default 8080)
	-d           DATABASE_URL      (default file:quickly-form.db)
	-t           DATABASE_TYPE     sqlite or postgres
	-jwt-secret  JWT_SECRET_KEY    required
	-access-ttl  ACCESS_TOKEN_TTL  (default 15m)
	-refresh-ttl REFRESH_TOKEN_TTL (default 168h)

CLI flags take precedence over environment variables.
*/
package cliparse
