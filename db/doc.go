// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the emulator database and creates its schema.

# Connecting

Open supports SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq):

	conn, err := db.Open(db.SQLite, "file:quickly-form.db")

SQLite connections are limited to one, which serializes writers.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn, db.SQLite); err != nil {
		return err
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
Queries use $n placeholders, which both drivers accept.

# Tables

  - app_user: accounts with bcrypt password hashes
  - refresh_token: issued refresh tokens and their revocation
  - form: owner, title, description and answering window
  - question, question_option: ordered by position
  - submission: one per form and user
  - answer: option ids as JSON text or a text value
  - draft: one per form and user, answers as JSON
  - participation: in_progress or completed per form and user

# Relationships

	form 1──* question 1──* question_option
	form 1──* submission 1──* answer
	form 1──* draft
	form 1──* participation

All foreign keys use ON DELETE CASCADE.
*/
package db
