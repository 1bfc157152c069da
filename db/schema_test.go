// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"testing"
	"time"
)

func TestCreateSchemaSQLite(t *testing.T) {
	conn, err := Open(SQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if err := CreateSchema(conn, SQLite); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	// IF NOT EXISTS makes a second run a no-op
	if err := CreateSchema(conn, SQLite); err != nil {
		t.Fatalf("CreateSchema second run: %v", err)
	}

	var userID uint
	err = conn.QueryRow(`
		INSERT INTO app_user (email, password_hash, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, "owner@example.com", "x", time.Now().UTC()).Scan(&userID)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if userID == 0 {
		t.Error("expected generated user id")
	}

	// foreign keys are enforced
	_, err = conn.Exec(`
		INSERT INTO form (owner_id, title, created_at) VALUES ($1, $2, $3)
	`, 9999, "Orphan form", time.Now().UTC())
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestOpenUnknownType(t *testing.T) {
	if _, err := Open("mysql", "whatever"); err == nil {
		t.Error("expected error for unsupported type")
	}
}
