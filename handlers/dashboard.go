// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielhkuo/quickly-form/middleware"
	"github.com/danielhkuo/quickly-form/models"
)

// RecentActivityWindow bounds the dashboard's recent activity count.
const RecentActivityWindow = 30 * 24 * time.Hour

// Activity paging defaults and limits
const (
	DefaultActivityPerPage = 10
	MaxActivityPerPage     = 100
)

type DashboardHandler struct {
	db  *sql.DB
	now func() time.Time
}

// NewDashboardHandler reads the current time from now; nil means time.Now.
func NewDashboardHandler(db *sql.DB, now func() time.Time) *DashboardHandler {
	return &DashboardHandler{db: db, now: utcClock(now)}
}

// GetDashboard handles GET /dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	data, err := h.buildDashboard(userID, h.now())
	if err != nil {
		slog.Error("failed to build dashboard", "error", err, "user_id", userID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.Success(w, http.StatusOK, "dashboard-data", data)
}

// buildDashboard lists forms the user has started or completed, plus open
// forms they have not touched. The user's own forms are left out.
func (h *DashboardHandler) buildDashboard(userID uint, now time.Time) (models.DashboardData, error) {
	rows, err := h.db.Query(`
		SELECT f.id, f.title, f.description, f.start_at, f.end_at,
		       p.status, p.started_at, p.completed_at, p.last_modified,
		       d.progress, d.last_modified,
		       EXISTS(SELECT 1 FROM submission s WHERE s.form_id = f.id AND s.user_id = $1)
		FROM form f
		LEFT JOIN participation p ON p.form_id = f.id AND p.user_id = $1
		LEFT JOIN draft d ON d.form_id = f.id AND d.user_id = $1
		WHERE f.owner_id <> $1
		ORDER BY f.id
	`, userID)
	if err != nil {
		return models.DashboardData{}, fmt.Errorf("failed to query dashboard: %w", err)
	}
	defer rows.Close()

	data := models.DashboardData{Forms: []models.DashboardForm{}}
	recentSince := now.Add(-RecentActivityWindow)

	for rows.Next() {
		var df models.DashboardForm
		var form formRow
		var start, end, startedAt, completedAt, lastModified, draftModified sql.NullTime
		var status sql.NullString
		var draftProgress sql.NullFloat64
		var submitted bool

		if err := rows.Scan(&df.FormID, &df.FormTitle, &df.FormDescription, &start, &end,
			&status, &startedAt, &completedAt, &lastModified,
			&draftProgress, &draftModified, &submitted); err != nil {
			return models.DashboardData{}, fmt.Errorf("failed to scan dashboard row: %w", err)
		}
		form.StartAt, form.EndAt = timePtr(start), timePtr(end)
		df.StartAt, df.EndAt = form.StartAt, form.EndAt

		switch {
		case status.Valid:
			df.Status = status.String
			df.StartedAt = timePtr(startedAt)
			df.CompletedAt = timePtr(completedAt)
			df.LastModified = timePtr(lastModified)
		case !submitted && form.windowOpen(now):
			df.Status = models.StatusAvailable
		default:
			continue
		}

		switch df.Status {
		case models.StatusInProgress:
			data.Statistics.TotalInProgress++
			if draftProgress.Valid {
				df.ProgressPercentage = draftProgress.Float64
			}
			if draftModified.Valid {
				df.LastModified = timePtr(draftModified)
			}
		case models.StatusCompleted:
			data.Statistics.TotalCompleted++
			df.ProgressPercentage = 100
		case models.StatusAvailable:
			data.Statistics.TotalAvailable++
		}

		if df.LastModified != nil && !df.LastModified.Before(recentSince) {
			data.Statistics.RecentActivityCount++
		}

		data.Forms = append(data.Forms, df)
	}
	if err := rows.Err(); err != nil {
		return models.DashboardData{}, fmt.Errorf("failed to read dashboard rows: %w", err)
	}

	return data, nil
}

// DeleteParticipation handles DELETE /dashboard/forms/{formId}/status
func (h *DashboardHandler) DeleteParticipation(w http.ResponseWriter, r *http.Request) {
	formID, ok := pathID(w, r, "formId")
	if !ok {
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	_, err := h.db.Exec(`
		DELETE FROM participation WHERE form_id = $1 AND user_id = $2
	`, formID, userID)
	if err != nil {
		slog.Error("failed to delete participation", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete form status")
		return
	}

	slog.Info("participation deleted", "form_id", formID, "user_id", userID)

	middleware.Success(w, http.StatusOK, "delete-form-participation",
		models.MessageResponse{Message: "Form status deleted"})
}

// GetActivities handles GET /dashboard/activities?status=&page=&per_page=
// status is all, in_progress or completed; pages start at 1.
func (h *DashboardHandler) GetActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	status := q.Get("status")
	switch status {
	case "":
		status = "all"
	case "all", models.StatusInProgress, models.StatusCompleted:
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest,
			"invalid status. Must be one of: all, in_progress, completed")
		return
	}

	page, ok := queryInt(w, q.Get("page"), "page", 1, 1, 0)
	if !ok {
		return
	}
	perPage, ok := queryInt(w, q.Get("per_page"), "per_page", DefaultActivityPerPage, 1, MaxActivityPerPage)
	if !ok {
		return
	}

	result, err := h.activities(userID, status, page, perPage)
	if err != nil {
		slog.Error("failed to list activities", "error", err, "user_id", userID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.Success(w, http.StatusOK, "get-user-activities", result)
}

// queryInt parses an optional integer parameter within [lo, hi]; hi of 0 is
// unbounded. It writes a 400 on failure.
func queryInt(w http.ResponseWriter, raw, name string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

func (h *DashboardHandler) activities(userID uint, status string, page, perPage int) (models.ActivityPage, error) {
	result := models.ActivityPage{Data: []models.Activity{}, Page: page, PerPage: perPage}

	err := h.db.QueryRow(`
		SELECT COUNT(*) FROM participation
		WHERE user_id = $1 AND ($2 = 'all' OR status = $2)
	`, userID, status).Scan(&result.Total)
	if err != nil {
		return result, fmt.Errorf("failed to count activities: %w", err)
	}

	rows, err := h.db.Query(`
		SELECT f.id, f.title, f.description, f.start_at, f.end_at,
		       p.status, p.completed_at, p.last_modified
		FROM participation p
		JOIN form f ON f.id = p.form_id
		WHERE p.user_id = $1 AND ($2 = 'all' OR p.status = $2)
		ORDER BY p.last_modified DESC, f.id
		LIMIT $3 OFFSET $4
	`, userID, status, perPage, (page-1)*perPage)
	if err != nil {
		return result, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Activity
		var start, end, completedAt, lastModified sql.NullTime
		if err := rows.Scan(&a.FormID, &a.FormTitle, &a.FormDescription, &start, &end,
			&a.Status, &completedAt, &lastModified); err != nil {
			return result, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.StartAt, a.EndAt = timePtr(start), timePtr(end)
		a.CompletedAt, a.LastModified = timePtr(completedAt), timePtr(lastModified)
		result.Data = append(result.Data, a)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("failed to read activities: %w", err)
	}
	return result, nil
}
