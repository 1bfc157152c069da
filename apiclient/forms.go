// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/danielhkuo/quickly-form/models"
)

// PublicForm fetches the form definition used for answering.
func (c *Client) PublicForm(ctx context.Context, formID uint) (*models.PublicForm, error) {
	var form models.PublicForm
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/forms/%d/public", formID), nil, &form); err != nil {
		return nil, err
	}
	return &form, nil
}

// HasVoted reports whether email has already completed the form.
func (c *Client) HasVoted(ctx context.Context, formID uint, email string) (bool, error) {
	var resp models.HasVotedResponse
	path := fmt.Sprintf("/forms/%d/hasvoted?email=%s", formID, url.QueryEscape(email))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Submitted, nil
}

func (c *Client) Submit(ctx context.Context, formID uint, req models.SubmitFormRequest) (*models.SubmitFormResponse, error) {
	var resp models.SubmitFormResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/forms/%d/submit", formID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateForm creates a form owned by the signed-in user and returns its id.
func (c *Client) CreateForm(ctx context.Context, req models.CreateFormRequest) (uint, error) {
	var resp models.CreateFormResponse
	if err := c.do(ctx, http.MethodPost, "/forms", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// SaveDraft upserts the caller's draft for req.FormID.
func (c *Client) SaveDraft(ctx context.Context, req models.SaveDraftRequest) (*models.DraftSubmission, error) {
	var draft models.DraftSubmission
	if err := c.do(ctx, http.MethodPost, "/drafts", req, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// GetDraft returns the caller's draft. A missing draft is ErrNotFound.
func (c *Client) GetDraft(ctx context.Context, formID uint) (*models.DraftSubmission, error) {
	var draft models.DraftSubmission
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/drafts/%d", formID), nil, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (c *Client) DeleteDraft(ctx context.Context, formID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/drafts/%d", formID), nil, nil)
}

func (c *Client) Dashboard(ctx context.Context) (*models.DashboardData, error) {
	var data models.DashboardData
	if err := c.do(ctx, http.MethodGet, "/dashboard", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DeleteParticipation resets the caller's status for a form, abandoning an
// in-progress participation.
func (c *Client) DeleteParticipation(ctx context.Context, formID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/dashboard/forms/%d/status", formID), nil, nil)
}

// UserForms lists the forms owned by the signed-in user.
func (c *Client) UserForms(ctx context.Context) ([]models.FormDetail, error) {
	var forms []models.FormDetail
	if err := c.do(ctx, http.MethodGet, "/forms/user", nil, &forms); err != nil {
		return nil, err
	}
	return forms, nil
}

// Form fetches the owner's view of a form. Other users get ErrAccess.
func (c *Client) Form(ctx context.Context, formID uint) (*models.FormDetail, error) {
	var form models.FormDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/forms/%d", formID), nil, &form); err != nil {
		return nil, err
	}
	return &form, nil
}

func (c *Client) UpdateForm(ctx context.Context, formID uint, req models.UpdateFormRequest) (*models.FormDetail, error) {
	var form models.FormDetail
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/forms/%d", formID), req, &form); err != nil {
		return nil, err
	}
	return &form, nil
}

func (c *Client) DeleteForm(ctx context.Context, formID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/forms/%d", formID), nil, nil)
}

// Voters lists who submitted or is filling in one of the caller's forms.
func (c *Client) Voters(ctx context.Context, formID uint) ([]models.FormVoter, error) {
	var voters []models.FormVoter
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/forms/%d/voters", formID), nil, &voters); err != nil {
		return nil, err
	}
	return voters, nil
}

// ActivityQuery selects a page of activity. Zero values use the server
// defaults.
type ActivityQuery struct {
	Status  string
	Page    int
	PerPage int
}

func (q ActivityQuery) encode() string {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// Activities returns one page of the caller's participation history.
func (c *Client) Activities(ctx context.Context, q ActivityQuery) (*models.ActivityPage, error) {
	var page models.ActivityPage
	if err := c.do(ctx, http.MethodGet, "/dashboard/activities"+q.encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
