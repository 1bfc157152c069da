// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielhkuo/quickly-form/middleware"
	"github.com/danielhkuo/quickly-form/models"
)

var errFormNotFound = errors.New("form not found")

// querier is satisfied by *sql.DB and *sql.Tx. With SQLite limited to one
// connection, a handler holding a transaction must only query through it.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// utcClock wraps now so handlers always see UTC. A nil now uses time.Now.
func utcClock(now func() time.Time) func() time.Time {
	if now == nil {
		now = time.Now
	}
	return func() time.Time { return now().UTC() }
}

// pathID parses a numeric path value, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "invalid form ID")
		return 0, false
	}
	return uint(id), true
}

// caller returns the authenticated user id. Routes without RequireAuth
// never call it.
func caller(w http.ResponseWriter, r *http.Request) (uint, bool) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Missing authorization token")
		return 0, false
	}
	return u.ID, true
}

type formRow struct {
	ID          uint
	OwnerID     uint
	Title       string
	Description string
	StartAt     *time.Time
	EndAt       *time.Time
	CreatedAt   time.Time
}

// windowOpen reports whether now is inside [start, end). Missing bounds are
// open.
func (f *formRow) windowOpen(now time.Time) bool {
	if f.StartAt != nil && now.Before(*f.StartAt) {
		return false
	}
	if f.EndAt != nil && !now.Before(*f.EndAt) {
		return false
	}
	return true
}

func loadForm(q querier, formID uint) (*formRow, error) {
	var f formRow
	var start, end, created sql.NullTime
	err := q.QueryRow(`
		SELECT id, owner_id, title, description, start_at, end_at, created_at
		FROM form WHERE id = $1
	`, formID).Scan(&f.ID, &f.OwnerID, &f.Title, &f.Description, &start, &end, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFormNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query form: %w", err)
	}
	f.StartAt = timePtr(start)
	f.EndAt = timePtr(end)
	f.CreatedAt = created.Time.UTC()
	return &f, nil
}

// loadQuestions returns the form's questions and options in position order.
func loadQuestions(q querier, formID uint) ([]models.Question, error) {
	rows, err := q.Query(`
		SELECT id, title, type FROM question
		WHERE form_id = $1
		ORDER BY position, id
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}

	var questions []models.Question
	index := make(map[uint]int)
	for rows.Next() {
		var qu models.Question
		if err := rows.Scan(&qu.ID, &qu.Title, &qu.Type); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		qu.Options = []models.Option{}
		index[qu.ID] = len(questions)
		questions = append(questions, qu)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	rows.Close()

	rows, err = q.Query(`
		SELECT o.id, o.question_id, o.title
		FROM question_option o
		JOIN question qu ON qu.id = o.question_id
		WHERE qu.form_id = $1
		ORDER BY o.question_id, o.position, o.id
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opt models.Option
		var questionID uint
		if err := rows.Scan(&opt.ID, &questionID, &opt.Title); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		if i, ok := index[questionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read options: %w", err)
	}

	if questions == nil {
		questions = []models.Question{}
	}
	return questions, nil
}

// markParticipation records status for the user. A completed participation
// is never downgraded to in_progress.
func markParticipation(q querier, formID, userID uint, status string, now time.Time) error {
	var current string
	err := q.QueryRow(`
		SELECT status FROM participation WHERE form_id = $1 AND user_id = $2
	`, formID, userID).Scan(&current)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		var completedAt any
		if status == models.StatusCompleted {
			completedAt = now
		}
		_, err = q.Exec(`
			INSERT INTO participation (form_id, user_id, status, started_at, completed_at, last_modified)
			VALUES ($1, $2, $3, $4, $5, $4)
		`, formID, userID, status, now, completedAt)
	case err != nil:
		return fmt.Errorf("failed to query participation: %w", err)
	case current == models.StatusCompleted && status != models.StatusCompleted:
		return nil
	case status == models.StatusCompleted:
		_, err = q.Exec(`
			UPDATE participation SET status = $3, completed_at = $4, last_modified = $4
			WHERE form_id = $1 AND user_id = $2
		`, formID, userID, status, now)
	default:
		_, err = q.Exec(`
			UPDATE participation SET status = $3, last_modified = $4
			WHERE form_id = $1 AND user_id = $2
		`, formID, userID, status, now)
	}
	if err != nil {
		return fmt.Errorf("failed to update participation: %w", err)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// nullableTime converts an optional time for insertion. Zero times are
// stored as NULL.
func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}
