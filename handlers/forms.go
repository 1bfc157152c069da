// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/quickly-form/middleware"
	"github.com/danielhkuo/quickly-form/models"
)

type FormHandler struct {
	db  *sql.DB
	now func() time.Time
}

// NewFormHandler reads the current time from now; nil means time.Now.
func NewFormHandler(db *sql.DB, now func() time.Time) *FormHandler {
	return &FormHandler{db: db, now: utcClock(now)}
}

// CreateForm handles POST /forms
func (h *FormHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.CreateFormRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}

	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "endAt must be after startAt")
		return
	}
	for i, q := range req.Questions {
		if q.Type != models.QuestionText && len(q.Options) == 0 {
			middleware.ErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("question %d requires at least one option", i+1))
			return
		}
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	var formID uint
	err = tx.QueryRow(`
		INSERT INTO form (owner_id, title, description, start_at, end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, ownerID, req.Title, req.Description, nullableTime(req.StartAt), nullableTime(req.EndAt), h.now()).Scan(&formID)
	if err != nil {
		slog.Error("failed to insert form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create form")
		return
	}

	for qi, q := range req.Questions {
		var questionID uint
		err := tx.QueryRow(`
			INSERT INTO question (form_id, title, type, position)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, formID, q.Title, q.Type, qi).Scan(&questionID)
		if err != nil {
			slog.Error("failed to insert question", "error", err, "form_id", formID)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create form")
			return
		}

		if q.Type == models.QuestionText {
			continue
		}
		for oi, opt := range q.Options {
			_, err := tx.Exec(`
				INSERT INTO question_option (question_id, title, position)
				VALUES ($1, $2, $3)
			`, questionID, opt.Title, oi)
			if err != nil {
				slog.Error("failed to insert option", "error", err, "form_id", formID)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create form")
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create form")
		return
	}

	slog.Info("form created", "form_id", formID, "owner_id", ownerID, "questions", len(req.Questions))

	middleware.Success(w, http.StatusCreated, "create-form", models.CreateFormResponse{ID: formID})
}

// GetPublicForm handles GET /forms/{id}/public
func (h *FormHandler) GetPublicForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	form, err := loadForm(h.db, formID)
	if errors.Is(err, errFormNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "form not found")
		return
	}
	if err != nil {
		slog.Error("failed to load form", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	questions, err := loadQuestions(h.db, formID)
	if err != nil {
		slog.Error("failed to load questions", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.Success(w, http.StatusOK, "get-public-form", models.PublicForm{
		ID:          form.ID,
		Title:       form.Title,
		Description: form.Description,
		StartAt:     form.StartAt,
		EndAt:       form.EndAt,
		Questions:   questions,
	})
}

// HasVoted handles GET /forms/{id}/hasvoted?email=
func (h *FormHandler) HasVoted(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	email := models.NormalizeEmail(r.URL.Query().Get("email"))
	if email == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	var submitted bool
	err := h.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM submission s
			JOIN app_user u ON u.id = s.user_id
			WHERE s.form_id = $1 AND u.email = $2
		)
	`, formID, email).Scan(&submitted)
	if err != nil {
		slog.Error("failed to query submission", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.Success(w, http.StatusOK, "user-submitted-form", models.HasVotedResponse{Submitted: submitted})
}

// SubmitForm handles POST /forms/{id}/submit
func (h *FormHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.SubmitFormRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	form, err := loadForm(tx, formID)
	if errors.Is(err, errFormNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "form not found")
		return
	}
	if err != nil {
		slog.Error("failed to load form", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if form.OwnerID == userID {
		middleware.ErrorResponse(w, http.StatusForbidden, "user cannot submit their own form")
		return
	}

	now := h.now()
	if form.StartAt != nil && now.Before(*form.StartAt) {
		middleware.ErrorResponse(w, http.StatusConflict, "Form is not open yet")
		return
	}
	if form.EndAt != nil && !now.Before(*form.EndAt) {
		middleware.ErrorResponse(w, http.StatusConflict, "Form closed")
		return
	}

	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM submission WHERE form_id = $1 AND user_id = $2)
	`, formID, userID).Scan(&exists)
	if err != nil {
		slog.Error("failed to query submission", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if exists {
		middleware.ErrorResponse(w, http.StatusBadRequest, "user has already submitted the form")
		return
	}

	questions, err := loadQuestions(tx, formID)
	if err != nil {
		slog.Error("failed to load questions", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := validateAnswers(questions, req.Answers); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := models.SubmitFormResponse{FormID: formID, UserID: userID, CompletedAt: now}
	err = tx.QueryRow(`
		INSERT INTO submission (form_id, user_id, completed_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, formID, userID, now).Scan(&resp.ID)
	if err != nil {
		slog.Error("failed to insert submission", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit form")
		return
	}

	for _, a := range req.Answers {
		var optionIDs, text any
		if a.Text != nil {
			text = *a.Text
		} else {
			encoded, err := json.Marshal(a.OptionIDs)
			if err != nil {
				middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid answers")
				return
			}
			optionIDs = string(encoded)
		}
		_, err := tx.Exec(`
			INSERT INTO answer (submission_id, question_id, option_ids, text)
			VALUES ($1, $2, $3, $4)
		`, resp.ID, a.QuestionID, optionIDs, text)
		if err != nil {
			slog.Error("failed to insert answer", "error", err, "form_id", formID)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit form")
			return
		}
	}

	if err := markParticipation(tx, formID, userID, models.StatusCompleted, now); err != nil {
		slog.Error("failed to mark participation", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit form")
		return
	}

	if _, err := tx.Exec(`
		DELETE FROM draft WHERE form_id = $1 AND user_id = $2
	`, formID, userID); err != nil {
		slog.Error("failed to delete draft", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit form")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit submission", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit form")
		return
	}

	slog.Info("form submitted", "form_id", formID, "user_id", userID, "answers", len(req.Answers))

	middleware.Success(w, http.StatusOK, "submit-form", resp)
}

// validateAnswers checks each answer against its question: single choice
// takes exactly one option, multiple choice at least one, and text must be
// non-blank. Option ids must belong to the question, and every question
// needs an answer.
func validateAnswers(questions []models.Question, answers []models.AnswerSubmission) error {
	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	seen := make(map[uint]bool, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return fmt.Errorf("question %d does not belong to this form", a.QuestionID)
		}
		if seen[a.QuestionID] {
			return fmt.Errorf("duplicate answer for question %d", a.QuestionID)
		}
		seen[a.QuestionID] = true

		switch q.Type {
		case models.QuestionText:
			if strings.TrimSpace(a.TextValue()) == "" {
				return fmt.Errorf("question %d requires a text answer", q.ID)
			}
			continue
		case models.QuestionSingleChoice:
			if len(a.OptionIDs) != 1 {
				return fmt.Errorf("question %d requires exactly one option", q.ID)
			}
		case models.QuestionMultipleChoice:
			if len(a.OptionIDs) == 0 {
				return fmt.Errorf("question %d requires at least one option", q.ID)
			}
		}

		valid := make(map[uint]bool, len(q.Options))
		for _, o := range q.Options {
			valid[o.ID] = true
		}
		for _, id := range a.OptionIDs {
			if !valid[id] {
				return fmt.Errorf("invalid option %d for question %d", id, q.ID)
			}
		}
	}

	for _, q := range questions {
		if !seen[q.ID] {
			return fmt.Errorf("question %d requires an answer", q.ID)
		}
	}
	return nil
}
