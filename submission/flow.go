// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/quickly-form/answers"
	"github.com/danielhkuo/quickly-form/apiclient"
	"github.com/danielhkuo/quickly-form/autosave"
	"github.com/danielhkuo/quickly-form/models"
)

const (
	MsgSubmitFailed = "Failed to submit form"
	MsgSubmitted    = "Form submitted successfully!"
)

var (
	ErrNotActive       = errors.New("form is not accepting answers")
	ErrUnknownQuestion = errors.New("question is not part of this form")
	ErrWrongAnswerKind = errors.New("answer kind does not match question type")
)

type State int

const (
	Loading State = iota
	NotFound
	AccessError
	AlreadyCompleted
	NotAvailable
	Active
	Submitting
	Success
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case NotFound:
		return "not_found"
	case AccessError:
		return "access_error"
	case AlreadyCompleted:
		return "already_completed"
	case NotAvailable:
		return "not_available"
	case Active:
		return "active"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Availability places a moment relative to a form's answering window.
type Availability int

const (
	Available Availability = iota
	Upcoming
	Expired
)

func (a Availability) String() string {
	switch a {
	case Upcoming:
		return "upcoming"
	case Expired:
		return "expired"
	}
	return "available"
}

// Window returns where now falls in [start, end). A nil or zero bound is open.
func Window(now time.Time, start, end *time.Time) Availability {
	if start != nil && !start.IsZero() && now.Before(*start) {
		return Upcoming
	}
	if end != nil && !end.IsZero() && !now.Before(*end) {
		return Expired
	}
	return Available
}

// API is the slice of the backend the flow talks to. *apiclient.Client
// satisfies it.
type API interface {
	autosave.Saver
	PublicForm(ctx context.Context, formID uint) (*models.PublicForm, error)
	HasVoted(ctx context.Context, formID uint, email string) (bool, error)
	GetDraft(ctx context.Context, formID uint) (*models.DraftSubmission, error)
	Submit(ctx context.Context, formID uint, req models.SubmitFormRequest) (*models.SubmitFormResponse, error)
	DeleteDraft(ctx context.Context, formID uint) error
	DeleteParticipation(ctx context.Context, formID uint) error
}

type Option func(*Flow)

// WithClock replaces time.Now for window checks.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithNotifier receives success and failure messages, including autosave
// failures.
func WithNotifier(n autosave.Notifier) Option {
	return func(f *Flow) { f.notifier = n }
}

// WithAutosave passes options through to the autosave scheduler.
func WithAutosave(opts ...autosave.Option) Option {
	return func(f *Flow) { f.autosaveOpts = append(f.autosaveOpts, opts...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

// Flow drives one form from loading through submission.
type Flow struct {
	api      API
	formID   uint
	email    string
	now      func() time.Time
	notifier autosave.Notifier
	logger   *slog.Logger

	autosaveOpts []autosave.Option

	mu           sync.Mutex
	state        State
	availability Availability
	form         *models.PublicForm
	store        *answers.Store
	saver        *autosave.Scheduler
	result       *models.SubmitFormResponse
	lastErr      string
}

// New returns a flow in the Loading state. email is used for the
// already-completed check and may be empty.
func New(api API, formID uint, email string, opts ...Option) *Flow {
	f := &Flow{
		api:    api,
		formID: formID,
		email:  email,
		now:    time.Now,
		logger: slog.Default(),
		store:  answers.NewStore(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load fetches the form, the completion status and the draft together and
// settles the flow into its first visible state. Only a network failure
// leaves the flow in Loading and returns an error; the caller may retry.
func (f *Flow) Load(ctx context.Context) error {
	var (
		form     *models.PublicForm
		formErr  error
		voted    bool
		votedErr error
		draft    *models.DraftSubmission
		draftErr error
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		form, formErr = f.api.PublicForm(ctx, f.formID)
	}()
	go func() {
		defer wg.Done()
		if f.email == "" {
			return
		}
		voted, votedErr = f.api.HasVoted(ctx, f.formID, f.email)
	}()
	go func() {
		defer wg.Done()
		draft, draftErr = f.api.GetDraft(ctx, f.formID)
	}()
	wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()

	if formErr != nil {
		switch {
		case errors.Is(formErr, apiclient.ErrNetwork),
			errors.Is(formErr, context.Canceled),
			errors.Is(formErr, context.DeadlineExceeded):
			f.state = Loading
			f.lastErr = formErr.Error()
			return fmt.Errorf("load form %d: %w", f.formID, formErr)
		case errors.Is(formErr, apiclient.ErrAccess), errors.Is(formErr, apiclient.ErrAuth):
			f.state = AccessError
		default:
			f.state = NotFound
		}
		f.lastErr = apiclient.Message(formErr)
		f.logger.Info("form unavailable", "form_id", f.formID, "state", f.state, "error", formErr)
		return nil
	}
	f.form = form

	if votedErr != nil {
		f.logger.Warn("failed to check submission status", "form_id", f.formID, "error", votedErr)
	}
	if voted {
		f.state = AlreadyCompleted
		return nil
	}

	f.availability = Window(f.now(), form.StartAt, form.EndAt)
	if f.availability != Available {
		f.state = NotAvailable
		return nil
	}

	var seed []models.AnswerSubmission
	switch {
	case draftErr == nil && draft != nil:
		seed = draft.Answers
	case draftErr != nil && !errors.Is(draftErr, apiclient.ErrNotFound):
		f.logger.Warn("failed to load draft", "form_id", f.formID, "error", draftErr)
	}
	f.store = answers.NewStoreFromDraft(form.Questions, seed)

	opts := []autosave.Option{autosave.WithLogger(f.logger)}
	if f.notifier != nil {
		opts = append(opts, autosave.WithNotifier(f.notifier))
	}
	opts = append(opts, f.autosaveOpts...)
	f.saver = autosave.New(f.api, f.draftPayload, opts...)

	f.state = Active
	f.logger.Debug("form loaded",
		"form_id", f.formID,
		"questions", len(form.Questions),
		"draft", len(seed) > 0,
	)
	return nil
}

// draftPayload is read by the autosave scheduler, possibly from its timer
// goroutine. The form never changes after Load.
func (f *Flow) draftPayload() (models.SaveDraftRequest, bool) {
	questions := f.form.Questions
	req := models.SaveDraftRequest{
		FormID:  f.formID,
		Answers: f.store.Format(questions),
	}
	return req, f.store.Answered() > 0
}

// UpdateAnswer records an answer and schedules a draft save. Text questions
// take text answers and choice questions take choice answers.
func (f *Flow) UpdateAnswer(questionID uint, a answers.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Active {
		return ErrNotActive
	}
	q, ok := f.questionLocked(questionID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
	}
	if q.IsChoice() != (a.Kind == answers.KindChoice) {
		return fmt.Errorf("%w: question %d is %s", ErrWrongAnswerKind, questionID, q.Type)
	}

	f.store.Update(questionID, a)
	f.saver.Arm()
	return nil
}

func (f *Flow) questionLocked(id uint) (models.Question, bool) {
	if f.form == nil {
		return models.Question{}, false
	}
	for _, q := range f.form.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.Question{}, false
}

// Submit validates and sends the answers. A validation failure returns
// *answers.ValidationError and leaves the flow Active. A rejected submission
// also returns to Active with LastError holding the server's message.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.state != Active {
		f.mu.Unlock()
		return ErrNotActive
	}
	questions := f.form.Questions
	if err := f.store.ValidationErr(questions); err != nil {
		f.mu.Unlock()
		return err
	}

	f.state = Submitting
	f.lastErr = ""
	f.saver.Cancel()
	req := models.SubmitFormRequest{Answers: f.store.Format(questions)}
	f.mu.Unlock()

	resp, err := f.api.Submit(ctx, f.formID, req)
	if err != nil {
		msg := apiclient.Message(err)
		if msg == "" {
			msg = MsgSubmitFailed
		}

		f.mu.Lock()
		f.state = Active
		f.lastErr = msg
		f.mu.Unlock()

		f.logger.Warn("submission failed", "form_id", f.formID, "error", err)
		f.notify(msg, err)
		return fmt.Errorf("submit form %d: %w", f.formID, err)
	}

	f.mu.Lock()
	f.state = Success
	f.result = resp
	f.store.Clear()
	saver := f.saver
	f.mu.Unlock()

	saver.Stop()
	// The server drops the draft on submit; this covers older backends.
	if err := f.api.DeleteDraft(ctx, f.formID); err != nil && !errors.Is(err, apiclient.ErrNotFound) {
		f.logger.Debug("draft cleanup failed", "form_id", f.formID, "error", err)
	}

	f.logger.Info("form submitted", "form_id", f.formID, "submission_id", resp.ID)
	f.notify(MsgSubmitted, nil)
	return nil
}

// Abandon throws away the draft and the participation status and clears the
// answers. The flow stays Active.
func (f *Flow) Abandon(ctx context.Context) error {
	f.mu.Lock()
	if f.state != Active {
		f.mu.Unlock()
		return ErrNotActive
	}
	f.saver.Cancel()
	f.saver.Reset()
	f.store.Clear()
	f.mu.Unlock()

	var errs []error
	if err := f.api.DeleteDraft(ctx, f.formID); err != nil && !errors.Is(err, apiclient.ErrNotFound) {
		errs = append(errs, fmt.Errorf("delete draft: %w", err))
	}
	if err := f.api.DeleteParticipation(ctx, f.formID); err != nil && !errors.Is(err, apiclient.ErrNotFound) {
		errs = append(errs, fmt.Errorf("delete participation: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	f.logger.Info("form abandoned", "form_id", f.formID)
	return nil
}

// Close flushes any unsaved answers when the flow is Active and stops the
// autosave scheduler.
func (f *Flow) Close(ctx context.Context) error {
	f.mu.Lock()
	state := f.state
	saver := f.saver
	f.mu.Unlock()

	if saver == nil {
		return nil
	}

	var err error
	if state == Active {
		err = saver.Flush(ctx)
	}
	saver.Stop()
	return err
}

func (f *Flow) notify(msg string, err error) {
	if f.notifier != nil {
		f.notifier.Notify(msg, err)
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Availability is meaningful once the form has loaded and was not already
// completed.
func (f *Flow) Availability() Availability {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.availability
}

// Form returns the loaded form, or nil before a successful Load.
func (f *Flow) Form() *models.PublicForm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

func (f *Flow) Questions() []models.Question {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.form == nil {
		return nil
	}
	return f.form.Questions
}

func (f *Flow) Answers() *answers.Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store
}

// LastError returns the message from the most recent failed load or submit.
func (f *Flow) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Result returns the completion record after a successful submit.
func (f *Flow) Result() *models.SubmitFormResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

func (f *Flow) FormID() uint {
	return f.formID
}
