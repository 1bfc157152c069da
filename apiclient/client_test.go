// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/quickly-form/models"
	"github.com/danielhkuo/quickly-form/session"
)

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"message": "ok", "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Message: msg, ErrorCode: status})
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sess := session.New(nil)
	require.NoError(t, sess.SignIn(models.User{ID: 1, Email: "ada@example.com"}, "access-1", "refresh-1"))

	c := New(srv.URL, sess, WithRetryWait(time.Millisecond, 5*time.Millisecond))
	return c, sess
}

func TestPublicFormSendsBearerAndDecodesEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /forms/{id}/public", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "5", r.PathValue("id"))
		writeData(w, http.StatusOK, models.PublicForm{
			ID:    5,
			Title: "Lunch poll",
			Questions: []models.Question{
				{ID: 1, Title: "Where?", Type: models.QuestionSingleChoice, Options: []models.Option{{ID: 9, Title: "Tacos"}}},
			},
		})
	})
	c, _ := newTestClient(t, mux)

	form, err := c.PublicForm(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Lunch poll", form.Title)
	require.Len(t, form.Questions, 1)
	assert.Equal(t, uint(9), form.Questions[0].Options[0].ID)
	assert.Nil(t, form.StartAt)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"forbidden", http.StatusForbidden, ErrAccess},
		{"conflict", http.StatusConflict, ErrAPI},
		{"bad request", http.StatusBadRequest, ErrAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, "boom")
			}))

			_, err := c.Submit(context.Background(), 1, models.SubmitFormRequest{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, "boom", Message(err))
		})
	}
}

func TestSubmitKeepsBackendMessageVerbatim(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, "Form closed")
	}))

	_, err := c.Submit(context.Background(), 1, models.SubmitFormRequest{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "Form closed", apiErr.Message)
}

func TestValidationErrorBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"field":"email","message":"invalid email"}]}`))
	}))

	_, err := c.Register(context.Background(), "nope", "secret1")
	assert.Equal(t, "email: invalid email", Message(err))
}

func TestNonJSONErrorBodyHasNoMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html><body><h1>502 Bad Gateway</h1></body></html>"))
	}))

	_, err := c.Submit(context.Background(), 1, models.SubmitFormRequest{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "", Message(err))
}

func TestSubmitBodyEncodesEmptySelection(t *testing.T) {
	var body []byte
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		writeData(w, http.StatusOK, models.SubmitFormResponse{ID: 1, FormID: 2, CompletedAt: time.Now()})
	}))

	_, err := c.Submit(context.Background(), 2, models.SubmitFormRequest{Answers: []models.AnswerSubmission{
		models.ChoiceAnswer(1, nil),
		models.TextAnswer(2, "hi"),
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answers":[{"question_id":1,"option_ids":[]},{"question_id":2,"text":"hi"}]}`, string(body))
}

func TestUnauthorizedRefreshesOnceAndRetries(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		var req models.RefreshTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refresh-1", req.RefreshToken)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeData(w, http.StatusOK, models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"})
	})
	mux.HandleFunc("GET /forms/{id}/hasvoted", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		assert.Equal(t, "ada+test@example.com", r.URL.Query().Get("email"))
		writeData(w, http.StatusOK, models.HasVotedResponse{Submitted: true})
	})
	c, sess := newTestClient(t, mux)

	voted, err := c.HasVoted(context.Background(), 3, "ada+test@example.com")
	require.NoError(t, err)
	assert.True(t, voted)
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, "access-2", sess.AccessToken())
	assert.Equal(t, "refresh-2", sess.RefreshToken())
}

func TestRefreshFailureClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
	})
	mux.HandleFunc("GET /dashboard", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "Invalid token")
	})
	c, sess := newTestClient(t, mux)

	_, err := c.Dashboard(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
	assert.False(t, sess.LoggedIn())
	assert.Empty(t, sess.RefreshToken())
	assert.True(t, IsTerminal(err))
}

func TestSecondUnauthorizedIsNotRefreshedAgain(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeData(w, http.StatusOK, models.RefreshTokenResponse{AccessToken: "access-2"})
	})
	mux.HandleFunc("GET /drafts/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "still no")
	})
	c, _ := newTestClient(t, mux)

	_, err := c.GetDraft(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(20 * time.Millisecond)
		writeData(w, http.StatusOK, models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"})
	})
	mux.HandleFunc("GET /forms/{id}/public", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		writeData(w, http.StatusOK, models.PublicForm{ID: 1})
	})
	c, _ := newTestClient(t, mux)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.PublicForm(context.Background(), 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
}

func TestGetIsRetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeError(w, http.StatusBadGateway, "upstream")
			return
		}
		writeData(w, http.StatusOK, models.DraftSubmission{FormID: 4})
	}))

	draft, err := c.GetDraft(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, uint(4), draft.FormID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusServiceUnavailable, "down")
	}))

	_, err := c.SaveDraft(context.Background(), models.SaveDraftRequest{FormID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, nil, WithRetries(0))

	_, err := c.PublicForm(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.False(t, IsTerminal(err))
}

func TestLoginStoresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret1" {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeData(w, http.StatusOK, models.LoginResponse{
			User:         models.User{ID: 8, Email: req.Email, Role: "user"},
			AccessToken:  "a",
			RefreshToken: "r",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sess := session.New(nil)
	c := New(srv.URL, sess)

	_, err := c.Login(context.Background(), "bob@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", Message(err))
	assert.False(t, sess.LoggedIn())

	resp, err := c.Login(context.Background(), "bob@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, uint(8), resp.User.ID)
	assert.Equal(t, "bob@example.com", sess.Identity().Email)
	assert.Equal(t, "r", sess.RefreshToken())
}

func TestLogoutClearsSessionEvenOnFailure(t *testing.T) {
	c, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "Failed to logout")
	}))

	err := c.Logout(context.Background())
	assert.Error(t, err)
	assert.False(t, sess.LoggedIn())
}

func TestDeleteDraftAndParticipation(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		writeData(w, http.StatusOK, models.MessageResponse{Message: "deleted"})
	}))

	require.NoError(t, c.DeleteDraft(context.Background(), 6))
	require.NoError(t, c.DeleteParticipation(context.Background(), 6))

	assert.Equal(t, []string{"DELETE /drafts/6", "DELETE /dashboard/forms/6/status"}, paths)
}

func TestOwnerFormRoutes(t *testing.T) {
	created := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	detail := models.FormDetail{ID: 7, Title: "Team offsite", UserID: 1, CreatedAt: created, Questions: []models.Question{}}

	var updated models.UpdateFormRequest
	var deleted atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /forms/user", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, []models.FormDetail{detail})
	})
	mux.HandleFunc("GET /forms/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			writeError(w, http.StatusForbidden, "you can only access forms that you own")
			return
		}
		writeData(w, http.StatusOK, detail)
	})
	mux.HandleFunc("PUT /forms/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
		out := detail
		out.Title = *updated.Title
		writeData(w, http.StatusOK, out)
	})
	mux.HandleFunc("DELETE /forms/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted.Store(true)
		writeData(w, http.StatusOK, models.MessageResponse{Message: "Form deleted"})
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	forms, err := c.UserForms(ctx)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.True(t, forms[0].CreatedAt.Equal(created))

	form, err := c.Form(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Team offsite", form.Title)

	_, err = c.Form(ctx, 8)
	assert.ErrorIs(t, err, ErrAccess)

	title := "Team offsite 2026"
	form, err = c.UpdateForm(ctx, 7, models.UpdateFormRequest{Title: &title, DeletedQuestionIDs: []uint{3}})
	require.NoError(t, err)
	assert.Equal(t, title, form.Title)
	assert.Equal(t, []uint{3}, updated.DeletedQuestionIDs)
	assert.Nil(t, updated.Description)

	require.NoError(t, c.DeleteForm(ctx, 7))
	assert.True(t, deleted.Load())
}

func TestVoters(t *testing.T) {
	done := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/4/voters", r.URL.Path)
		writeData(w, http.StatusOK, []models.FormVoter{
			{UserID: 2, Email: "bo@example.com", Status: models.StatusCompleted, CompletedAt: &done},
			{UserID: 3, Email: "cy@example.com", Status: models.StatusInProgress},
		})
	}))

	voters, err := c.Voters(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, voters, 2)
	assert.Equal(t, models.StatusCompleted, voters[0].Status)
	require.NotNil(t, voters[0].CompletedAt)
	assert.True(t, voters[0].CompletedAt.Equal(done))
	assert.Nil(t, voters[1].CompletedAt)
}

func TestActivitiesQuery(t *testing.T) {
	tests := []struct {
		name  string
		query ActivityQuery
		want  string
	}{
		{"defaults", ActivityQuery{}, ""},
		{"status only", ActivityQuery{Status: "completed"}, "status=completed"},
		{"all fields", ActivityQuery{Status: "in_progress", Page: 2, PerPage: 5}, "page=2&per_page=5&status=in_progress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/dashboard/activities", r.URL.Path)
				assert.Equal(t, tt.want, r.URL.RawQuery)
				writeData(w, http.StatusOK, models.ActivityPage{
					Data:    []models.Activity{{FormID: 1, FormTitle: "Lunch poll", Status: models.StatusCompleted}},
					Total:   11,
					Page:    2,
					PerPage: 5,
				})
			}))

			page, err := c.Activities(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, 11, page.Total)
			require.Len(t, page.Data, 1)
			assert.Equal(t, "Lunch poll", page.Data[0].FormTitle)
		})
	}
}
