// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-form/models"
	"github.com/danielhkuo/quickly-form/testutil"
)

func dashboardByForm(data models.DashboardData) map[uint]models.DashboardForm {
	out := make(map[uint]models.DashboardForm, len(data.Forms))
	for _, f := range data.Forms {
		out[f.FormID] = f
	}
	return out
}

func TestGetDashboard(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	ownerID, ownerToken := env.user(t, "owner@example.com")
	_, token := env.user(t, "user@example.com")

	available := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	upcoming := testutil.CreateTestForm(t, env.db, ownerID, timeAt(now.Add(24*time.Hour)), nil)
	closed := testutil.CreateTestForm(t, env.db, ownerID, nil, timeAt(now.Add(-24*time.Hour)))
	started := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	done := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)

	drafts := NewDraftHandler(env.db, nil)
	forms := NewFormHandler(env.db, nil)
	dashboard := NewDashboardHandler(env.db, nil)

	w := env.serve(drafts.SaveDraft, authedRequest("POST", "/drafts", models.SaveDraftRequest{
		FormID:  started.ID,
		Answers: []models.AnswerSubmission{models.TextAnswer(started.Questions[2].ID, "half way")},
	}, token))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = env.serve(forms.SubmitForm, withPath(authedRequest("POST", "/forms/x/submit",
		models.SubmitFormRequest{Answers: testutil.CompleteAnswers(done)}, token), "id", done.ID))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = env.serve(dashboard.GetDashboard, authedRequest("GET", "/dashboard", nil, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	data := testutil.AssertData[models.DashboardData](t, w)

	want := models.DashboardStatistics{
		TotalAvailable:      1,
		TotalInProgress:     1,
		TotalCompleted:      1,
		RecentActivityCount: 2,
	}
	if data.Statistics != want {
		t.Errorf("Statistics = %+v, want %+v", data.Statistics, want)
	}

	byForm := dashboardByForm(data)
	if len(byForm) != 3 {
		t.Fatalf("Expected 3 forms, got %+v", data.Forms)
	}
	if _, ok := byForm[upcoming.ID]; ok {
		t.Error("Upcoming form should not be listed")
	}
	if _, ok := byForm[closed.ID]; ok {
		t.Error("Closed form should not be listed")
	}

	if f := byForm[available.ID]; f.Status != models.StatusAvailable || f.LastModified != nil {
		t.Errorf("Available form = %+v", f)
	}

	inProgress := byForm[started.ID]
	if inProgress.Status != models.StatusInProgress {
		t.Errorf("Started form status = %q", inProgress.Status)
	}
	if inProgress.ProgressPercentage < 33 || inProgress.ProgressPercentage > 34 {
		t.Errorf("Started form progress = %v", inProgress.ProgressPercentage)
	}
	if inProgress.StartedAt == nil || inProgress.LastModified == nil {
		t.Errorf("Started form missing times: %+v", inProgress)
	}

	completed := byForm[done.ID]
	if completed.Status != models.StatusCompleted || completed.CompletedAt == nil {
		t.Errorf("Done form = %+v", completed)
	}
	if completed.ProgressPercentage != 100 {
		t.Errorf("Done form progress = %v", completed.ProgressPercentage)
	}

	// Owners do not see their own forms
	w = env.serve(dashboard.GetDashboard, authedRequest("GET", "/dashboard", nil, ownerToken))
	testutil.AssertStatus(t, w, http.StatusOK)
	ownerData := testutil.AssertData[models.DashboardData](t, w)
	if len(ownerData.Forms) != 0 {
		t.Errorf("Expected empty owner dashboard, got %+v", ownerData.Forms)
	}
}

func TestDashboardRecentActivityWindow(t *testing.T) {
	env := newTestEnv(t)
	ownerID, _ := env.user(t, "owner@example.com")
	userID, _ := env.user(t, "user@example.com")
	form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := markParticipation(env.db, form.ID, userID, models.StatusCompleted, now.Add(-31*24*time.Hour)); err != nil {
		t.Fatalf("markParticipation() error = %v", err)
	}

	h := NewDashboardHandler(env.db, nil)
	data, err := h.buildDashboard(userID, now)
	if err != nil {
		t.Fatalf("buildDashboard() error = %v", err)
	}
	if data.Statistics.TotalCompleted != 1 {
		t.Errorf("TotalCompleted = %d, want 1", data.Statistics.TotalCompleted)
	}
	if data.Statistics.RecentActivityCount != 0 {
		t.Errorf("RecentActivityCount = %d, want 0", data.Statistics.RecentActivityCount)
	}
}

func TestDeleteParticipation(t *testing.T) {
	env := newTestEnv(t)
	ownerID, _ := env.user(t, "owner@example.com")
	userID, token := env.user(t, "user@example.com")
	started := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
	done := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)

	drafts := NewDraftHandler(env.db, nil)
	forms := NewFormHandler(env.db, nil)
	dashboard := NewDashboardHandler(env.db, nil)

	w := env.serve(drafts.SaveDraft, authedRequest("POST", "/drafts", models.SaveDraftRequest{FormID: started.ID}, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	w = env.serve(forms.SubmitForm, withPath(authedRequest("POST", "/forms/x/submit",
		models.SubmitFormRequest{Answers: testutil.CompleteAnswers(done)}, token), "id", done.ID))
	testutil.AssertStatus(t, w, http.StatusOK)

	for _, formID := range []uint{started.ID, done.ID} {
		w = env.serve(dashboard.DeleteParticipation,
			withPath(authedRequest("DELETE", "/dashboard/forms/x/status", nil, token), "formId", formID))
		testutil.AssertStatus(t, w, http.StatusOK)
		if got := participationStatus(t, env.db, formID, userID); got != "" {
			t.Errorf("Participation for form %d = %q, want deleted", formID, got)
		}
	}

	data, err := dashboard.buildDashboard(userID, time.Now().UTC())
	if err != nil {
		t.Fatalf("buildDashboard() error = %v", err)
	}

	// The untouched form is available again; the submitted one stays hidden
	byForm := dashboardByForm(data)
	if f, ok := byForm[started.ID]; !ok || f.Status != models.StatusAvailable {
		t.Errorf("Started form = %+v, want available", f)
	}
	if _, ok := byForm[done.ID]; ok {
		t.Error("Submitted form should not be listed")
	}
}

func TestGetActivities(t *testing.T) {
	env := newTestEnv(t)
	ownerID, _ := env.user(t, "owner@example.com")
	userID, token := env.user(t, "user@example.com")
	h := NewDashboardHandler(env.db, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ids []uint
	for i := range 5 {
		form := testutil.CreateTestForm(t, env.db, ownerID, nil, nil)
		ids = append(ids, form.ID)
		status := models.StatusInProgress
		if i%2 == 0 {
			status = models.StatusCompleted
		}
		if err := markParticipation(env.db, form.ID, userID, status, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("markParticipation() error = %v", err)
		}
	}
	// An untouched form is not activity
	testutil.CreateTestForm(t, env.db, ownerID, nil, nil)

	get := func(query string) models.ActivityPage {
		t.Helper()
		w := env.serve(h.GetActivities, authedRequest("GET", "/dashboard/activities"+query, nil, token))
		testutil.AssertStatus(t, w, http.StatusOK)
		return testutil.AssertData[models.ActivityPage](t, w)
	}

	page := get("")
	if page.Total != 5 || page.Page != 1 || page.PerPage != DefaultActivityPerPage || len(page.Data) != 5 {
		t.Fatalf("Default page = %+v", page)
	}
	// Newest first
	if page.Data[0].FormID != ids[4] || page.Data[4].FormID != ids[0] {
		t.Errorf("Order = %v", page.Data)
	}
	if a := page.Data[0]; a.Status != models.StatusCompleted || a.CompletedAt == nil || a.FormTitle != "Test Form" {
		t.Errorf("Newest activity = %+v", a)
	}

	page = get("?status=completed&page=2&per_page=2")
	if page.Total != 3 || page.Page != 2 || page.PerPage != 2 {
		t.Errorf("Completed page 2 = %+v", page)
	}
	if len(page.Data) != 1 || page.Data[0].FormID != ids[0] {
		t.Errorf("Completed page 2 data = %+v", page.Data)
	}

	page = get("?status=in_progress")
	if page.Total != 2 || len(page.Data) != 2 {
		t.Errorf("In progress = %+v", page)
	}
	for _, a := range page.Data {
		if a.Status != models.StatusInProgress || a.CompletedAt != nil {
			t.Errorf("In-progress activity = %+v", a)
		}
	}

	// Past the end is an empty page, not an error
	page = get("?page=9")
	if page.Total != 5 || page.Data == nil || len(page.Data) != 0 {
		t.Errorf("Page past end = %#v", page)
	}
}

func TestGetActivitiesRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "user@example.com")
	h := NewDashboardHandler(env.db, nil)

	tests := []struct {
		query   string
		message string
	}{
		{"?status=available", "invalid status. Must be one of: all, in_progress, completed"},
		{"?page=0", "invalid page"},
		{"?page=two", "invalid page"},
		{"?per_page=0", "invalid per_page"},
		{"?per_page=101", "invalid per_page"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.serve(h.GetActivities, authedRequest("GET", "/dashboard/activities"+tt.query, nil, token))
			testutil.AssertStatus(t, w, http.StatusBadRequest)
			testutil.AssertErrorMessage(t, w, tt.message)
		})
	}
}
