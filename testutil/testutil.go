// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/danielhkuo/quickly-form/auth"
	"github.com/danielhkuo/quickly-form/cliparse"
	"github.com/danielhkuo/quickly-form/db"
	"github.com/danielhkuo/quickly-form/models"
)

// TestPassword is the password of every user made by CreateTestUser.
const TestPassword = "password123"

var dbSeq atomic.Int64

func init() {
	auth.BcryptCost = bcrypt.MinCost
}

// SetupTestDB creates a fresh in-memory SQLite database with the full schema.
// Each call gets its own database, closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := db.Open(db.SQLite, url)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn, db.SQLite); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.EmulatorConfig {
	return cliparse.EmulatorConfig{
		Port:            3318,
		DatabaseURL:     "file::memory:",
		DatabaseType:    db.SQLite,
		JWTSecret:       "test-jwt-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}
}

// NewTestIssuer returns an issuer matching GetTestConfig.
func NewTestIssuer() *auth.TokenIssuer {
	cfg := GetTestConfig()
	return auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

// CreateTestUser inserts a user with TestPassword and returns its ID and a
// bearer access token signed by issuer.
func CreateTestUser(t *testing.T, db *sql.DB, issuer *auth.TokenIssuer, email string) (uint, string) {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	var id uint
	err = db.QueryRow(`
		INSERT INTO app_user (email, password_hash, role, created_at)
		VALUES ($1, $2, 'user', $3)
		RETURNING id
	`, email, hash, time.Now().UTC()).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	token, err := issuer.IssueAccessToken(id, email)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	return id, token
}

// CreateTestForm inserts a form owned by ownerID with three questions: a
// single choice with two options, a multiple choice with three and a text
// question. start and end may be nil.
func CreateTestForm(t *testing.T, db *sql.DB, ownerID uint, start, end *time.Time) models.PublicForm {
	t.Helper()

	form := models.PublicForm{
		Title:       "Test Form",
		Description: "A test form",
		StartAt:     start,
		EndAt:       end,
	}

	var startAt, endAt any
	if start != nil {
		startAt = start.UTC()
	}
	if end != nil {
		endAt = end.UTC()
	}

	err := db.QueryRow(`
		INSERT INTO form (owner_id, title, description, start_at, end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, ownerID, form.Title, form.Description, startAt, endAt, time.Now().UTC()).Scan(&form.ID)
	if err != nil {
		t.Fatalf("Failed to create test form: %v", err)
	}

	specs := []struct {
		title   string
		typ     string
		options []string
	}{
		{"Favorite color", models.QuestionSingleChoice, []string{"Red", "Blue"}},
		{"Pets", models.QuestionMultipleChoice, []string{"Cat", "Dog", "Fish"}},
		{"Comments", models.QuestionText, nil},
	}

	for qi, spec := range specs {
		q := models.Question{Title: spec.title, Type: spec.typ, Options: []models.Option{}}
		err := db.QueryRow(`
			INSERT INTO question (form_id, title, type, position)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, form.ID, q.Title, q.Type, qi).Scan(&q.ID)
		if err != nil {
			t.Fatalf("Failed to create test question: %v", err)
		}

		for oi, title := range spec.options {
			opt := models.Option{Title: title}
			err := db.QueryRow(`
				INSERT INTO question_option (question_id, title, position)
				VALUES ($1, $2, $3)
				RETURNING id
			`, q.ID, title, oi).Scan(&opt.ID)
			if err != nil {
				t.Fatalf("Failed to create test option: %v", err)
			}
			q.Options = append(q.Options, opt)
		}

		form.Questions = append(form.Questions, q)
	}

	return form
}

// CompleteAnswers returns a valid answer for every question of form.
func CompleteAnswers(form models.PublicForm) []models.AnswerSubmission {
	answers := make([]models.AnswerSubmission, 0, len(form.Questions))
	for _, q := range form.Questions {
		if q.Type == models.QuestionText {
			answers = append(answers, models.TextAnswer(q.ID, "looks good"))
			continue
		}
		answers = append(answers, models.ChoiceAnswer(q.ID, []uint{q.Options[0].ID}))
	}
	return answers
}

// BearerHeader returns request headers carrying token.
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// AssertData decodes a {"message", "data"} envelope and returns data.
func AssertData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env models.Response[T]
	AssertJSON(t, w, &env)
	return env.Data
}

// AssertErrorMessage checks the message of an error response.
func AssertErrorMessage(t *testing.T, w *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Message != expected {
		t.Errorf("Expected error %q, got %q", expected, resp.Message)
	}
}
