// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-form/models"
	"github.com/danielhkuo/quickly-form/testutil"
)

func strPtr(s string) *string { return &s }

func uintPtr(n uint) *uint { return &n }

func itoa(n uint) string { return strconv.FormatUint(uint64(n), 10) }

func TestGetForm(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	_, otherToken := env.user(t, "other@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	h := NewFormHandler(env.db, nil)

	w := env.serve(h.GetForm, withPath(authedRequest("GET", "/forms/x", nil, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	detail := testutil.AssertData[models.FormDetail](t, w)
	if detail.ID != form.ID || detail.UserID != ownerID || detail.Title != form.Title {
		t.Errorf("Unexpected detail %+v", detail)
	}
	if detail.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if len(detail.Questions) != 3 || len(detail.Questions[1].Options) != 3 {
		t.Errorf("Unexpected questions %+v", detail.Questions)
	}

	w = env.serve(h.GetForm, withPath(authedRequest("GET", "/forms/x", nil, otherToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusForbidden)
	testutil.AssertErrorMessage(t, w, "you can only access forms that you own")

	w = env.serve(h.GetForm, withPath(authedRequest("GET", "/forms/x", nil, ownerToken), "id", 999))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestGetUserForms(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	otherID, otherToken := env.user(t, "other@example.com")
	first := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	second := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	testutil.CreateTestForm(t, env.db, otherID, nil, nil)
	h := NewFormHandler(env.db, nil)

	w := env.serve(h.GetUserForms, authedRequest("GET", "/forms/user", nil, ownerToken))
	testutil.AssertStatus(t, w, http.StatusOK)
	forms := testutil.AssertData[[]models.FormDetail](t, w)
	if len(forms) != 2 || forms[0].ID != first.ID || forms[1].ID != second.ID {
		t.Fatalf("Expected the owner's two forms, got %+v", forms)
	}
	for _, f := range forms {
		if f.UserID != ownerID || len(f.Questions) != 3 {
			t.Errorf("Unexpected form %+v", f)
		}
	}

	// A user without forms gets an empty list, not null
	_, emptyToken := env.user(t, "empty@example.com")
	w = env.serve(h.GetUserForms, authedRequest("GET", "/forms/user", nil, emptyToken))
	testutil.AssertStatus(t, w, http.StatusOK)
	if forms := testutil.AssertData[[]models.FormDetail](t, w); forms == nil || len(forms) != 0 {
		t.Errorf("Expected empty list, got %#v", forms)
	}

	w = env.serve(h.GetUserForms, authedRequest("GET", "/forms/user", nil, otherToken))
	if forms := testutil.AssertData[[]models.FormDetail](t, w); len(forms) != 1 {
		t.Errorf("Expected one form for other user, got %d", len(forms))
	}
}

func TestUpdateForm(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	single, multi, text := form.Questions[0], form.Questions[1], form.Questions[2]
	h := NewFormHandler(env.db, nil)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	req := models.UpdateFormRequest{
		Title:   strPtr("Renamed form"),
		StartAt: &start,
		EndAt:   &end,
		Questions: []models.UpdateQuestionRequest{
			{ID: uintPtr(single.ID), Title: "Pick one colour", Type: single.Type, Options: []models.UpdateOptionRequest{
				{ID: uintPtr(single.Options[0].ID), Title: "Crimson"},
				{Title: "Green"},
			}},
			{Title: "Anything else?", Type: models.QuestionText},
		},
		DeletedQuestionIDs: []uint{multi.ID},
	}

	w := env.serve(h.UpdateForm, withPath(authedRequest("PUT", "/forms/x", req, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	detail := testutil.AssertData[models.FormDetail](t, w)

	if detail.Title != "Renamed form" || detail.Description != form.Description {
		t.Errorf("Title/Description = %q/%q", detail.Title, detail.Description)
	}
	if detail.StartAt == nil || !detail.StartAt.Equal(start) || detail.EndAt == nil || !detail.EndAt.Equal(end) {
		t.Errorf("Window = %v..%v", detail.StartAt, detail.EndAt)
	}
	if len(detail.Questions) != 3 {
		t.Fatalf("Expected 3 questions, got %+v", detail.Questions)
	}
	if q := detail.Questions[0]; q.ID != single.ID || q.Title != "Pick one colour" || len(q.Options) != 3 {
		t.Errorf("Edited question = %+v", q)
	} else if q.Options[0].Title != "Crimson" || q.Options[2].Title != "Green" {
		t.Errorf("Edited options = %+v", q.Options)
	}
	if detail.Questions[1].ID != text.ID {
		t.Errorf("Untouched question moved: %+v", detail.Questions[1])
	}
	if q := detail.Questions[2]; q.Title != "Anything else?" || q.Type != models.QuestionText {
		t.Errorf("Added question = %+v", q)
	}
	if n := countRows(t, env.db, `SELECT COUNT(*) FROM question_option WHERE question_id = $1`, multi.ID); n != 0 {
		t.Errorf("Deleted question left %d options", n)
	}

	// Leaving fields out keeps them
	w = env.serve(h.UpdateForm, withPath(authedRequest("PUT", "/forms/x",
		models.UpdateFormRequest{Description: strPtr("New description")}, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	detail = testutil.AssertData[models.FormDetail](t, w)
	if detail.Title != "Renamed form" || detail.Description != "New description" || detail.StartAt == nil {
		t.Errorf("Partial update = %+v", detail)
	}
}

func TestUpdateFormRejects(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	_, otherToken := env.user(t, "other@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	otherForm := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	single, text := form.Questions[0], form.Questions[2]
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	tests := []struct {
		name    string
		token   string
		req     any
		status  int
		message string
	}{
		{"not owner", otherToken, models.UpdateFormRequest{Title: strPtr("Stolen form")}, http.StatusForbidden,
			"you can only access forms that you own"},
		{"short title", ownerToken, models.UpdateFormRequest{Title: strPtr("abc")}, http.StatusBadRequest, ""},
		{"end before start", ownerToken, models.UpdateFormRequest{StartAt: &start, EndAt: &before}, http.StatusBadRequest,
			"endAt must be after startAt"},
		{"foreign question", ownerToken, models.UpdateFormRequest{Questions: []models.UpdateQuestionRequest{
			{ID: uintPtr(otherForm.Questions[0].ID), Title: "Mine now", Type: models.QuestionSingleChoice},
		}}, http.StatusBadRequest, "question " + itoa(otherForm.Questions[0].ID) + " does not belong to this form"},
		{"foreign deletion", ownerToken, models.UpdateFormRequest{DeletedQuestionIDs: []uint{otherForm.Questions[0].ID}},
			http.StatusBadRequest, "question " + itoa(otherForm.Questions[0].ID) + " does not belong to this form"},
		{"type change", ownerToken, models.UpdateFormRequest{Questions: []models.UpdateQuestionRequest{
			{ID: uintPtr(text.ID), Title: "Now a choice", Type: models.QuestionSingleChoice},
		}}, http.StatusBadRequest, "question " + itoa(text.ID) + " cannot change type"},
		{"foreign option", ownerToken, models.UpdateFormRequest{Questions: []models.UpdateQuestionRequest{
			{ID: uintPtr(single.ID), Title: single.Title, Type: single.Type, Options: []models.UpdateOptionRequest{
				{ID: uintPtr(form.Questions[1].Options[0].ID), Title: "Cat"},
			}},
		}}, http.StatusBadRequest, "invalid option " + itoa(form.Questions[1].Options[0].ID) + " for question " + itoa(single.ID)},
		{"new choice without options", ownerToken, models.UpdateFormRequest{Questions: []models.UpdateQuestionRequest{
			{Title: "Empty", Type: models.QuestionMultipleChoice},
		}}, http.StatusBadRequest, "question 1 requires at least one option"},
		{"delete everything", ownerToken, models.UpdateFormRequest{DeletedQuestionIDs: []uint{
			form.Questions[0].ID, form.Questions[1].ID, form.Questions[2].ID,
		}}, http.StatusBadRequest, "form requires at least one question"},
	}

	h := NewFormHandler(env.db, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.serve(h.UpdateForm, withPath(authedRequest("PUT", "/forms/x", tt.req, tt.token), "id", form.ID))
			testutil.AssertStatus(t, w, tt.status)
			if tt.message != "" {
				testutil.AssertErrorMessage(t, w, tt.message)
			}
		})
	}

	// Rejected edits leave the form untouched
	if n := countRows(t, env.db, `SELECT COUNT(*) FROM question WHERE form_id = $1`, form.ID); n != 3 {
		t.Errorf("Expected 3 questions after rejected edits, got %d", n)
	}
	var title string
	if err := env.db.QueryRow(`SELECT title FROM form WHERE id = $1`, form.ID).Scan(&title); err != nil {
		t.Fatalf("Failed to read title: %v", err)
	}
	if title != form.Title {
		t.Errorf("Title changed to %q", title)
	}
}

func TestUpdateFormAfterSubmission(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	_, voterToken := env.user(t, "voter@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	h := NewFormHandler(env.db, nil)

	w := env.serve(h.SubmitForm, withPath(authedRequest("POST", "/forms/x/submit",
		models.SubmitFormRequest{Answers: testutil.CompleteAnswers(form)}, voterToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = env.serve(h.UpdateForm, withPath(authedRequest("PUT", "/forms/x",
		models.UpdateFormRequest{DeletedQuestionIDs: []uint{form.Questions[2].ID}}, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusConflict)
	testutil.AssertErrorMessage(t, w, "questions cannot change once the form has submissions")

	// Metadata can still change
	w = env.serve(h.UpdateForm, withPath(authedRequest("PUT", "/forms/x",
		models.UpdateFormRequest{Title: strPtr("Results are in")}, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestDeleteForm(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	_, voterToken := env.user(t, "voter@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	forms := NewFormHandler(env.db, nil)
	drafts := NewDraftHandler(env.db, nil)

	w := env.serve(drafts.SaveDraft, authedRequest("POST", "/drafts", models.SaveDraftRequest{
		FormID:  form.ID,
		Answers: []models.AnswerSubmission{models.TextAnswer(form.Questions[2].ID, "soon")},
	}, voterToken))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = env.serve(forms.DeleteForm, withPath(authedRequest("DELETE", "/forms/x", nil, voterToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = env.serve(forms.DeleteForm, withPath(authedRequest("DELETE", "/forms/x", nil, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)

	for _, table := range []string{"form", "question", "draft", "participation"} {
		query := `SELECT COUNT(*) FROM ` + table + ` WHERE form_id = $1`
		if table == "form" {
			query = `SELECT COUNT(*) FROM form WHERE id = $1`
		}
		if n := countRows(t, env.db, query, form.ID); n != 0 {
			t.Errorf("%s still has %d rows", table, n)
		}
	}

	w = env.serve(forms.DeleteForm, withPath(authedRequest("DELETE", "/forms/x", nil, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestGetFormVoters(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	doneID, doneToken := env.user(t, "done@example.com")
	draftID, draftToken := env.user(t, "draft@example.com")
	env.user(t, "idle@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	forms := NewFormHandler(env.db, nil)
	drafts := NewDraftHandler(env.db, nil)

	w := env.serve(drafts.SaveDraft, authedRequest("POST", "/drafts", models.SaveDraftRequest{FormID: form.ID}, draftToken))
	testutil.AssertStatus(t, w, http.StatusOK)
	w = env.serve(forms.SubmitForm, withPath(authedRequest("POST", "/forms/x/submit",
		models.SubmitFormRequest{Answers: testutil.CompleteAnswers(form)}, doneToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = env.serve(forms.GetFormVoters, withPath(authedRequest("GET", "/forms/x/voters", nil, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	voters := testutil.AssertData[[]models.FormVoter](t, w)

	if len(voters) != 2 {
		t.Fatalf("Expected 2 voters, got %+v", voters)
	}
	done, draft := voters[0], voters[1]
	if done.UserID != doneID || done.Email != "done@example.com" || done.Status != models.StatusCompleted || done.CompletedAt == nil {
		t.Errorf("Completed voter = %+v", done)
	}
	if draft.UserID != draftID || draft.Status != models.StatusInProgress || draft.CompletedAt != nil || draft.LastModified == nil {
		t.Errorf("In-progress voter = %+v", draft)
	}

	w = env.serve(forms.GetFormVoters, withPath(authedRequest("GET", "/forms/x/voters", nil, doneToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestGetFormVotersKeepsSubmissionAfterStatusReset(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.user(t, "owner@example.com")
	voterID, voterToken := env.user(t, "voter@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	forms := NewFormHandler(env.db, nil)
	dashboard := NewDashboardHandler(env.db, nil)

	w := env.serve(forms.SubmitForm, withPath(authedRequest("POST", "/forms/x/submit",
		models.SubmitFormRequest{Answers: testutil.CompleteAnswers(form)}, voterToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	w = env.serve(dashboard.DeleteParticipation,
		withPath(authedRequest("DELETE", "/dashboard/forms/x/status", nil, voterToken), "formId", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = env.serve(forms.GetFormVoters, withPath(authedRequest("GET", "/forms/x/voters", nil, ownerToken), "id", form.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	voters := testutil.AssertData[[]models.FormVoter](t, w)
	if len(voters) != 1 || voters[0].UserID != voterID || voters[0].Status != models.StatusCompleted {
		t.Errorf("Expected the submitted voter, got %+v", voters)
	}
}
