// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"cmp"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/danielhkuo/quickly-form/middleware"
	"github.com/danielhkuo/quickly-form/models"
)

// editError carries a message for the client when an update is rejected.
type editError struct {
	status int
	msg    string
}

func (e *editError) Error() string { return e.msg }

func badEdit(status int, format string, args ...any) error {
	return &editError{status: status, msg: fmt.Sprintf(format, args...)}
}

// ownedForm loads the form and checks that userID owns it, writing a 404 or
// 403 otherwise.
func ownedForm(w http.ResponseWriter, q querier, formID, userID uint) (*formRow, bool) {
	form, err := loadForm(q, formID)
	if errors.Is(err, errFormNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "form not found")
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load form", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return nil, false
	}
	if form.OwnerID != userID {
		middleware.ErrorResponse(w, http.StatusForbidden, "you can only access forms that you own")
		return nil, false
	}
	return form, true
}

func formDetail(f *formRow, questions []models.Question) models.FormDetail {
	return models.FormDetail{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		StartAt:     f.StartAt,
		EndAt:       f.EndAt,
		CreatedAt:   f.CreatedAt,
		UserID:      f.OwnerID,
		Questions:   questions,
	}
}

// GetForm handles GET /forms/{id}
func (h *FormHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	form, ok := ownedForm(w, h.db, formID, userID)
	if !ok {
		return
	}

	questions, err := loadQuestions(h.db, formID)
	if err != nil {
		slog.Error("failed to load questions", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.Success(w, http.StatusOK, "get-form", formDetail(form, questions))
}

// GetUserForms handles GET /forms/user
func (h *FormHandler) GetUserForms(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	forms, err := h.formsOwnedBy(userID)
	if err != nil {
		slog.Error("failed to list forms", "error", err, "user_id", userID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.Success(w, http.StatusOK, "get-user-forms", forms)
}

func (h *FormHandler) formsOwnedBy(userID uint) ([]models.FormDetail, error) {
	rows, err := h.db.Query(`
		SELECT id, owner_id, title, description, start_at, end_at, created_at
		FROM form WHERE owner_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query forms: %w", err)
	}

	var owned []formRow
	for rows.Next() {
		var f formRow
		var start, end, created sql.NullTime
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Title, &f.Description, &start, &end, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		f.StartAt, f.EndAt = timePtr(start), timePtr(end)
		f.CreatedAt = created.Time.UTC()
		owned = append(owned, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read forms: %w", err)
	}
	rows.Close()

	out := make([]models.FormDetail, 0, len(owned))
	for i := range owned {
		questions, err := loadQuestions(h.db, owned[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, formDetail(&owned[i], questions))
	}
	return out, nil
}

// UpdateForm handles PUT /forms/{id}. Questions can only be added, edited or
// removed while the form has no submissions.
func (h *FormHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.UpdateFormRequest
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

	form, ok := ownedForm(w, tx, formID, userID)
	if !ok {
		return
	}

	err = applyFormUpdate(tx, form, req)
	var bad *editError
	if errors.As(err, &bad) {
		middleware.ErrorResponse(w, bad.status, bad.msg)
		return
	}
	if err != nil {
		slog.Error("failed to update form", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update form")
		return
	}

	questions, err := loadQuestions(tx, formID)
	if err != nil {
		slog.Error("failed to load questions", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if len(questions) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "form requires at least one question")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit form update", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update form")
		return
	}

	slog.Info("form updated", "form_id", formID, "owner_id", userID,
		"questions", len(questions), "deleted", len(req.DeletedQuestionIDs))

	middleware.Success(w, http.StatusOK, "update-form", formDetail(form, questions))
}

// applyFormUpdate writes req onto form inside tx and leaves form holding the
// new field values.
func applyFormUpdate(tx querier, form *formRow, req models.UpdateFormRequest) error {
	if req.Title != nil {
		form.Title = *req.Title
	}
	if req.Description != nil {
		form.Description = *req.Description
	}
	// A zero time clears the bound
	if req.StartAt != nil {
		form.StartAt = timePtr(sql.NullTime{Time: *req.StartAt, Valid: !req.StartAt.IsZero()})
	}
	if req.EndAt != nil {
		form.EndAt = timePtr(sql.NullTime{Time: *req.EndAt, Valid: !req.EndAt.IsZero()})
	}
	if form.StartAt != nil && form.EndAt != nil && !form.EndAt.After(*form.StartAt) {
		return badEdit(http.StatusBadRequest, "endAt must be after startAt")
	}

	_, err := tx.Exec(`
		UPDATE form SET title = $2, description = $3, start_at = $4, end_at = $5
		WHERE id = $1
	`, form.ID, form.Title, form.Description, nullableTime(form.StartAt), nullableTime(form.EndAt))
	if err != nil {
		return fmt.Errorf("failed to update form: %w", err)
	}

	if len(req.Questions) == 0 && len(req.DeletedQuestionIDs) == 0 {
		return nil
	}

	var submitted bool
	if err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM submission WHERE form_id = $1)
	`, form.ID).Scan(&submitted); err != nil {
		return fmt.Errorf("failed to query submissions: %w", err)
	}
	if submitted {
		return badEdit(http.StatusConflict, "questions cannot change once the form has submissions")
	}

	for _, id := range req.DeletedQuestionIDs {
		res, err := tx.Exec(`DELETE FROM question WHERE id = $1 AND form_id = $2`, id, form.ID)
		if err != nil {
			return fmt.Errorf("failed to delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return badEdit(http.StatusBadRequest, "question %d does not belong to this form", id)
		}
	}

	existing, err := loadQuestions(tx, form.ID)
	if err != nil {
		return err
	}
	byID := make(map[uint]models.Question, len(existing))
	for _, q := range existing {
		byID[q.ID] = q
	}

	var nextPos int
	if err := tx.QueryRow(`
		SELECT COALESCE(MAX(position), -1) + 1 FROM question WHERE form_id = $1
	`, form.ID).Scan(&nextPos); err != nil {
		return fmt.Errorf("failed to query question position: %w", err)
	}

	for i, q := range req.Questions {
		if q.ID == nil {
			if q.Type != models.QuestionText && len(q.Options) == 0 {
				return badEdit(http.StatusBadRequest, "question %d requires at least one option", i+1)
			}
			if err := insertQuestion(tx, form.ID, q, nextPos); err != nil {
				return err
			}
			nextPos++
			continue
		}

		current, ok := byID[*q.ID]
		if !ok {
			return badEdit(http.StatusBadRequest, "question %d does not belong to this form", *q.ID)
		}
		if q.Type != current.Type {
			return badEdit(http.StatusBadRequest, "question %d cannot change type", current.ID)
		}
		if err := updateQuestion(tx, current, q); err != nil {
			return err
		}
	}
	return nil
}

func insertQuestion(tx querier, formID uint, q models.UpdateQuestionRequest, position int) error {
	var questionID uint
	err := tx.QueryRow(`
		INSERT INTO question (form_id, title, type, position)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, formID, q.Title, q.Type, position).Scan(&questionID)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	if q.Type == models.QuestionText {
		return nil
	}
	for oi, opt := range q.Options {
		if opt.ID != nil {
			return badEdit(http.StatusBadRequest, "option %d does not belong to a new question", *opt.ID)
		}
		if _, err := tx.Exec(`
			INSERT INTO question_option (question_id, title, position)
			VALUES ($1, $2, $3)
		`, questionID, opt.Title, oi); err != nil {
			return fmt.Errorf("failed to insert option: %w", err)
		}
	}
	return nil
}

func updateQuestion(tx querier, current models.Question, q models.UpdateQuestionRequest) error {
	if _, err := tx.Exec(`UPDATE question SET title = $2 WHERE id = $1`, current.ID, q.Title); err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	if current.Type == models.QuestionText {
		return nil
	}

	owned := make(map[uint]bool, len(current.Options))
	for _, o := range current.Options {
		owned[o.ID] = true
	}
	nextPos := len(current.Options)
	for _, opt := range q.Options {
		if opt.ID == nil {
			if _, err := tx.Exec(`
				INSERT INTO question_option (question_id, title, position)
				VALUES ($1, $2, $3)
			`, current.ID, opt.Title, nextPos); err != nil {
				return fmt.Errorf("failed to insert option: %w", err)
			}
			nextPos++
			continue
		}
		if !owned[*opt.ID] {
			return badEdit(http.StatusBadRequest, "invalid option %d for question %d", *opt.ID, current.ID)
		}
		if _, err := tx.Exec(`UPDATE question_option SET title = $2 WHERE id = $1`, *opt.ID, opt.Title); err != nil {
			return fmt.Errorf("failed to update option: %w", err)
		}
	}
	return nil
}

// DeleteForm handles DELETE /forms/{id}. Questions, submissions, drafts and
// participation go with it.
func (h *FormHandler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	if _, ok := ownedForm(w, h.db, formID, userID); !ok {
		return
	}

	if _, err := h.db.Exec(`DELETE FROM form WHERE id = $1`, formID); err != nil {
		slog.Error("failed to delete form", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete form")
		return
	}

	slog.Info("form deleted", "form_id", formID, "owner_id", userID)

	middleware.Success(w, http.StatusOK, "delete-form", models.MessageResponse{Message: "Form deleted"})
}

// GetFormVoters handles GET /forms/{id}/voters. It lists users who submitted
// and users with a draft in progress, ordered by user id.
func (h *FormHandler) GetFormVoters(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	if _, ok := ownedForm(w, h.db, formID, userID); !ok {
		return
	}

	voters, err := h.formVoters(formID)
	if err != nil {
		slog.Error("failed to list voters", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.Success(w, http.StatusOK, "get-form-voters", voters)
}

func (h *FormHandler) formVoters(formID uint) ([]models.FormVoter, error) {
	voters := []models.FormVoter{}

	rows, err := h.db.Query(`
		SELECT u.id, u.email, s.completed_at
		FROM submission s
		JOIN app_user u ON u.id = s.user_id
		WHERE s.form_id = $1
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	submitted := make(map[uint]bool)
	for rows.Next() {
		v := models.FormVoter{Status: models.StatusCompleted}
		var completed sql.NullTime
		if err := rows.Scan(&v.UserID, &v.Email, &completed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		v.CompletedAt = timePtr(completed)
		v.LastModified = v.CompletedAt
		submitted[v.UserID] = true
		voters = append(voters, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}
	rows.Close()

	rows, err = h.db.Query(`
		SELECT u.id, u.email, p.last_modified
		FROM participation p
		JOIN app_user u ON u.id = p.user_id
		WHERE p.form_id = $1 AND p.status = $2
	`, formID, models.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to query participation: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v := models.FormVoter{Status: models.StatusInProgress}
		var modified sql.NullTime
		if err := rows.Scan(&v.UserID, &v.Email, &modified); err != nil {
			return nil, fmt.Errorf("failed to scan participation: %w", err)
		}
		if submitted[v.UserID] {
			continue
		}
		v.LastModified = timePtr(modified)
		voters = append(voters, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read participation: %w", err)
	}

	slices.SortFunc(voters, func(a, b models.FormVoter) int { return cmp.Compare(a.UserID, b.UserID) })
	return voters, nil
}
