package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Question type constants
const (
	QuestionSingleChoice   = "single_choice"
	QuestionMultipleChoice = "multiple_choice"
	QuestionText           = "text"
)

// Participation status constants
const (
	StatusAvailable  = "available"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Envelopes

// Response wraps every successful payload: {"message": ..., "data": ...}
type Response[T any] struct {
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type ErrorResponse struct {
	Message   string `json:"message"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is returned instead of ErrorResponse when request
// fields fail validation.
type ValidationErrorResponse struct {
	Errors []FieldError `json:"errors"`
}

// Auth types

type User struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

// NormalizeEmail trims and lowercases an address so lookups ignore case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type LoginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshToken may be empty when the server does not rotate refresh tokens.
type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Form types

type Option struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

type Question struct {
	ID      uint     `json:"id"`
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	Options []Option `json:"options"`
}

// IsChoice reports whether answers to q are option selections.
func (q Question) IsChoice() bool {
	return q.Type == QuestionSingleChoice || q.Type == QuestionMultipleChoice
}

type PublicForm struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartAt     *time.Time `json:"startAt"`
	EndAt       *time.Time `json:"endAt"`
	Questions   []Question `json:"questions"`
}

type CreateOptionRequest struct {
	Title string `json:"title" validate:"required"`
}

type CreateQuestionRequest struct {
	Title   string                `json:"title" validate:"required"`
	Type    string                `json:"type" validate:"required,oneof=single_choice multiple_choice text"`
	Options []CreateOptionRequest `json:"options,omitempty" validate:"dive"`
}

type CreateFormRequest struct {
	Title       string                  `json:"title" validate:"required,min=5,max=100"`
	Description string                  `json:"description"`
	StartAt     *time.Time              `json:"startAt"`
	EndAt       *time.Time              `json:"endAt"`
	Questions   []CreateQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

type CreateFormResponse struct {
	ID uint `json:"id"`
}

// FormDetail is the owner's view of a form.
type FormDetail struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartAt     *time.Time `json:"startAt"`
	EndAt       *time.Time `json:"endAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UserID      uint       `json:"user_id"`
	Questions   []Question `json:"questions"`
}

type UpdateOptionRequest struct {
	ID    *uint  `json:"id,omitempty"`
	Title string `json:"title" validate:"required"`
}

// UpdateQuestionRequest edits the question with ID, or adds a new one when
// ID is nil. Options without an id are appended.
type UpdateQuestionRequest struct {
	ID      *uint                 `json:"id,omitempty"`
	Title   string                `json:"title" validate:"required"`
	Type    string                `json:"type" validate:"required,oneof=single_choice multiple_choice text"`
	Options []UpdateOptionRequest `json:"options,omitempty" validate:"dive"`
}

// UpdateFormRequest changes only the fields that are set.
type UpdateFormRequest struct {
	Title              *string                 `json:"title,omitempty" validate:"omitempty,min=5,max=100"`
	Description        *string                 `json:"description,omitempty"`
	StartAt            *time.Time              `json:"startAt,omitempty"`
	EndAt              *time.Time              `json:"endAt,omitempty"`
	Questions          []UpdateQuestionRequest `json:"questions,omitempty" validate:"dive"`
	DeletedQuestionIDs []uint                  `json:"deletedQuestionIds,omitempty"`
}

// FormVoter is a respondent as seen by the form owner. CompletedAt is set
// once the user has submitted.
type FormVoter struct {
	UserID       uint       `json:"user_id"`
	Email        string     `json:"email"`
	Status       string     `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Submission types

// AnswerSubmission is one answer on the wire. OptionIDs and Text are mutually
// exclusive; a non-nil empty OptionIDs is encoded as [] rather than omitted.
type AnswerSubmission struct {
	QuestionID uint
	OptionIDs  []uint
	Text       *string
}

type answerSubmissionWire struct {
	QuestionID uint    `json:"question_id"`
	OptionIDs  *[]uint `json:"option_ids,omitempty"`
	Text       *string `json:"text,omitempty"`
}

func (a AnswerSubmission) MarshalJSON() ([]byte, error) {
	w := answerSubmissionWire{QuestionID: a.QuestionID, Text: a.Text}
	if a.OptionIDs != nil {
		ids := a.OptionIDs
		w.OptionIDs = &ids
	}
	return json.Marshal(w)
}

func (a *AnswerSubmission) UnmarshalJSON(data []byte) error {
	var w answerSubmissionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.QuestionID = w.QuestionID
	a.Text = w.Text
	a.OptionIDs = nil
	if w.OptionIDs != nil {
		a.OptionIDs = *w.OptionIDs
	}
	return nil
}

// TextAnswer builds a text answer submission.
func TextAnswer(questionID uint, text string) AnswerSubmission {
	return AnswerSubmission{QuestionID: questionID, Text: &text}
}

// ChoiceAnswer builds a choice answer submission. The ids are used as given.
func ChoiceAnswer(questionID uint, optionIDs []uint) AnswerSubmission {
	if optionIDs == nil {
		optionIDs = []uint{}
	}
	return AnswerSubmission{QuestionID: questionID, OptionIDs: optionIDs}
}

// TextValue returns the text, or "" when absent.
func (a AnswerSubmission) TextValue() string {
	if a.Text == nil {
		return ""
	}
	return *a.Text
}

type SubmitFormRequest struct {
	Answers []AnswerSubmission `json:"answers" validate:"required"`
}

type SubmitFormResponse struct {
	ID          uint      `json:"id"`
	FormID      uint      `json:"form_id"`
	UserID      uint      `json:"user_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type HasVotedResponse struct {
	Submitted bool `json:"submitted"`
}

// Draft types

type SaveDraftRequest struct {
	FormID  uint               `json:"form_id" validate:"required"`
	Answers []AnswerSubmission `json:"answers"`
}

type DraftSubmission struct {
	ID                 uint               `json:"id"`
	FormID             uint               `json:"form_id"`
	UserID             uint               `json:"user_id"`
	FormTitle          string             `json:"form_title"`
	FormDescription    string             `json:"form_description,omitempty"`
	LastModified       time.Time          `json:"last_modified"`
	ProgressPercentage float64            `json:"progress_percentage"`
	Answers            []AnswerSubmission `json:"answers"`
}

// Dashboard types

type DashboardStatistics struct {
	TotalAvailable      int `json:"total_available"`
	TotalCompleted      int `json:"total_completed"`
	TotalInProgress     int `json:"total_in_progress"`
	RecentActivityCount int `json:"recent_activity_count"`
}

type DashboardForm struct {
	FormID             uint       `json:"form_id"`
	FormTitle          string     `json:"form_title"`
	FormDescription    string     `json:"form_description"`
	Status             string     `json:"status"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	LastModified       *time.Time `json:"last_modified,omitempty"`
	ProgressPercentage float64    `json:"progress_percentage"`
	StartAt            *time.Time `json:"startAt"`
	EndAt              *time.Time `json:"endAt"`
}

type DashboardData struct {
	Statistics DashboardStatistics `json:"statistics"`
	Forms      []DashboardForm     `json:"forms"`
}

type Activity struct {
	FormID          uint       `json:"form_id"`
	FormTitle       string     `json:"form_title"`
	FormDescription string     `json:"form_description"`
	Status          string     `json:"status"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LastModified    *time.Time `json:"last_modified,omitempty"`
	StartAt         *time.Time `json:"startAt"`
	EndAt           *time.Time `json:"endAt"`
}

// ActivityPage is one page of a user's participations, newest first.
type ActivityPage struct {
	Data    []Activity `json:"data"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
