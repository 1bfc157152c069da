// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Open connects to the database and verifies the connection. SQLite
// connections are limited to one so writers never contend for the file lock.
func Open(dbType, url string) (*sql.DB, error) {
	driver, err := driverName(dbType)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbType == SQLite {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return conn, nil
}

func driverName(dbType string) (string, error) {
	switch dbType {
	case SQLite, "":
		return "sqlite", nil
	case Postgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported database type %q", dbType)
}

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB, dbType string) error {
	pk := "INTEGER PRIMARY KEY"
	if dbType == Postgres {
		pk = "SERIAL PRIMARY KEY"
	}

	_, err := db.Exec(strings.ReplaceAll(schema, "{{pk}}", pk))
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Users
CREATE TABLE IF NOT EXISTS app_user (
    id {{pk}},
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user',
    created_at TIMESTAMP NOT NULL
);

-- Refresh tokens, one row per issued token
CREATE TABLE IF NOT EXISTS refresh_token (
    token TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    expires_at TIMESTAMP NOT NULL,
    revoked_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_refresh_token_user_id ON refresh_token(user_id);

-- Forms
CREATE TABLE IF NOT EXISTS form (
    id {{pk}},
    owner_id INTEGER NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    start_at TIMESTAMP,
    end_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_form_owner_id ON form(owner_id);

-- Questions
CREATE TABLE IF NOT EXISTS question (
    id {{pk}},
    form_id INTEGER NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('single_choice', 'multiple_choice', 'text')),
    position INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_question_form_id ON question(form_id);

-- Options
CREATE TABLE IF NOT EXISTS question_option (
    id {{pk}},
    question_id INTEGER NOT NULL REFERENCES question(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    position INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_question_option_question_id ON question_option(question_id);

-- Submissions
CREATE TABLE IF NOT EXISTS submission (
    id {{pk}},
    form_id INTEGER NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    user_id INTEGER NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    completed_at TIMESTAMP NOT NULL,
    UNIQUE (form_id, user_id)
);

-- Answers; option_ids is a JSON array
CREATE TABLE IF NOT EXISTS answer (
    submission_id INTEGER NOT NULL REFERENCES submission(id) ON DELETE CASCADE,
    question_id INTEGER NOT NULL REFERENCES question(id) ON DELETE CASCADE,
    option_ids TEXT,
    text TEXT,
    PRIMARY KEY (submission_id, question_id)
);

-- Drafts; answers is the JSON-encoded answer list
CREATE TABLE IF NOT EXISTS draft (
    id {{pk}},
    form_id INTEGER NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    user_id INTEGER NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    answers TEXT NOT NULL,
    progress DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_modified TIMESTAMP NOT NULL,
    UNIQUE (form_id, user_id)
);

-- Participation status per user and form
CREATE TABLE IF NOT EXISTS participation (
    form_id INTEGER NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    user_id INTEGER NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    status TEXT NOT NULL CHECK (status IN ('in_progress', 'completed')),
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    last_modified TIMESTAMP NOT NULL,
    PRIMARY KEY (form_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_participation_user_id ON participation(user_id);
`
