// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/quickly-form/middleware"
	"github.com/danielhkuo/quickly-form/models"
)

type DraftHandler struct {
	db  *sql.DB
	now func() time.Time
}

// NewDraftHandler reads the current time from now; nil means time.Now.
func NewDraftHandler(db *sql.DB, now func() time.Time) *DraftHandler {
	return &DraftHandler{db: db, now: utcClock(now)}
}

// SaveDraft handles POST /drafts. One draft exists per user and form;
// saving again replaces its answers.
func (h *DraftHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.SaveDraftRequest
	if !middleware.BindJSON(w, r, &req) {
		return
	}
	if req.Answers == nil {
		req.Answers = []models.AnswerSubmission{}
	}

	encoded, err := json.Marshal(req.Answers)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid answers")
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	form, err := loadForm(tx, req.FormID)
	if errors.Is(err, errFormNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "form not found")
		return
	}
	if err != nil {
		slog.Error("failed to load form", "error", err, "form_id", req.FormID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var total int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM question WHERE form_id = $1
	`, form.ID).Scan(&total); err != nil {
		slog.Error("failed to count questions", "error", err, "form_id", form.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	now := h.now()
	draft := models.DraftSubmission{
		FormID:             form.ID,
		UserID:             userID,
		FormTitle:          form.Title,
		FormDescription:    form.Description,
		LastModified:       now,
		ProgressPercentage: progress(req.Answers, total),
		Answers:            req.Answers,
	}

	err = tx.QueryRow(`
		INSERT INTO draft (form_id, user_id, answers, progress, last_modified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (form_id, user_id) DO UPDATE
		SET answers = excluded.answers,
		    progress = excluded.progress,
		    last_modified = excluded.last_modified
		RETURNING id
	`, form.ID, userID, string(encoded), draft.ProgressPercentage, now).Scan(&draft.ID)
	if err != nil {
		slog.Error("failed to upsert draft", "error", err, "form_id", form.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save draft")
		return
	}

	if err := markParticipation(tx, form.ID, userID, models.StatusInProgress, now); err != nil {
		slog.Error("failed to mark participation", "error", err, "form_id", form.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save draft")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit draft", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save draft")
		return
	}

	slog.Debug("draft saved", "form_id", form.ID, "user_id", userID, "progress", draft.ProgressPercentage)

	middleware.Success(w, http.StatusOK, "save-draft", draft)
}

// GetDraft handles GET /drafts/{formId}
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "formId")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	draft := models.DraftSubmission{FormID: formID, UserID: userID}
	var answers string
	err := h.db.QueryRow(`
		SELECT d.id, d.answers, d.progress, d.last_modified, f.title, f.description
		FROM draft d
		JOIN form f ON f.id = d.form_id
		WHERE d.form_id = $1 AND d.user_id = $2
	`, formID, userID).Scan(&draft.ID, &answers, &draft.ProgressPercentage,
		&draft.LastModified, &draft.FormTitle, &draft.FormDescription)
	if errors.Is(err, sql.ErrNoRows) {
		middleware.ErrorResponse(w, http.StatusNotFound, "draft not found")
		return
	}
	if err != nil {
		slog.Error("failed to query draft", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := json.Unmarshal([]byte(answers), &draft.Answers); err != nil {
		slog.Error("failed to decode draft answers", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Corrupt draft")
		return
	}
	if draft.Answers == nil {
		draft.Answers = []models.AnswerSubmission{}
	}
	draft.LastModified = draft.LastModified.UTC()

	middleware.Success(w, http.StatusOK, "get-draft", draft)
}

// DeleteDraft handles DELETE /drafts/{formId}. Deleting a missing draft
// succeeds.
func (h *DraftHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "formId")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	_, err := h.db.Exec(`
		DELETE FROM draft WHERE form_id = $1 AND user_id = $2
	`, formID, userID)
	if err != nil {
		slog.Error("failed to delete draft", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete draft")
		return
	}

	middleware.Success(w, http.StatusOK, "delete-draft", models.MessageResponse{Message: "Draft deleted"})
}

// progress is the share of questions with a non-empty answer, 0-100.
func progress(answers []models.AnswerSubmission, total int) float64 {
	if total == 0 {
		return 0
	}
	answered := 0
	for _, a := range answers {
		if len(a.OptionIDs) > 0 || strings.TrimSpace(a.TextValue()) != "" {
			answered++
		}
	}
	if answered > total {
		answered = total
	}
	return float64(answered) / float64(total) * 100
}
