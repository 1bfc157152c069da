// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package answers

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/danielhkuo/quickly-form/models"
)

// Validation messages shown next to a question.
const (
	MsgTextRequired   = "This field is required"
	MsgChoiceRequired = "Please select at least one option"
)

var ErrMissingRequiredAnswer = errors.New("missing required answer")

type Kind int

const (
	KindText Kind = iota + 1
	KindChoice
)

// Answer is either free text or a set of selected option ids.
type Answer struct {
	Kind      Kind
	Text      string
	OptionIDs []uint
}

func Text(s string) Answer {
	return Answer{Kind: KindText, Text: s}
}

func Choice(optionIDs ...uint) Answer {
	ids := make([]uint, len(optionIDs))
	copy(ids, optionIDs)
	return Answer{Kind: KindChoice, OptionIDs: ids}
}

// IsEmpty reports whether a counts as unanswered: blank text after trimming,
// or no selected options.
func (a Answer) IsEmpty() bool {
	switch a.Kind {
	case KindText:
		return strings.TrimSpace(a.Text) == ""
	case KindChoice:
		return len(a.OptionIDs) == 0
	}
	return true
}

// ValidationError lists every question that failed validation.
type ValidationError struct {
	Fields map[uint]string
}

func (e *ValidationError) Error() string {
	ids := make([]uint, 0, len(e.Fields))
	for id := range e.Fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("question %d: %s", id, e.Fields[id]))
	}
	return ErrMissingRequiredAnswer.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrMissingRequiredAnswer
}

// Store holds the current answer and validation error per question.
// It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	answers map[uint]Answer
	errors  map[uint]string
}

func NewStore() *Store {
	return &Store{
		answers: make(map[uint]Answer),
		errors:  make(map[uint]string),
	}
}

// NewStoreFromDraft seeds an entry for every question, taking values from the
// draft where present: text questions default to "" and choice questions to no
// selection.
func NewStoreFromDraft(questions []models.Question, draft []models.AnswerSubmission) *Store {
	s := NewStore()
	byQuestion := make(map[uint]models.AnswerSubmission, len(draft))
	for _, a := range draft {
		byQuestion[a.QuestionID] = a
	}

	for _, q := range questions {
		d, ok := byQuestion[q.ID]
		if q.IsChoice() {
			var ids []uint
			if ok {
				ids = d.OptionIDs
			}
			s.answers[q.ID] = Choice(ids...)
			continue
		}
		s.answers[q.ID] = Text(d.TextValue())
	}
	return s
}

// Update replaces the answer for questionID and dismisses its validation error.
func (s *Store) Update(questionID uint, a Answer) {
	if a.Kind == KindChoice {
		a.OptionIDs = slices.Clone(a.OptionIDs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[questionID] = a
	delete(s.errors, questionID)
}

// Clear drops every answer and validation error.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = make(map[uint]Answer)
	s.errors = make(map[uint]string)
}

func (s *Store) Get(questionID uint) (Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	if ok && a.Kind == KindChoice {
		a.OptionIDs = slices.Clone(a.OptionIDs)
	}
	return a, ok
}

// Len returns the number of questions with an entry, answered or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Answered returns the number of entries that are not empty.
func (s *Store) Answered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.answers {
		if !a.IsEmpty() {
			n++
		}
	}
	return n
}

// Errors returns a copy of the current validation errors.
func (s *Store) Errors() map[uint]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint]string, len(s.errors))
	for id, msg := range s.errors {
		out[id] = msg
	}
	return out
}

func (s *Store) Error(questionID uint) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.errors[questionID]
	return msg, ok
}

// Validate checks every question and replaces the error set with all
// failures found. It returns true when nothing failed.
func (s *Store) Validate(questions []models.Question) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make(map[uint]string)
	for _, q := range questions {
		a, ok := s.answers[q.ID]
		if q.IsChoice() {
			if !ok || len(a.OptionIDs) == 0 {
				errs[q.ID] = MsgChoiceRequired
			}
			continue
		}
		if !ok || strings.TrimSpace(a.Text) == "" {
			errs[q.ID] = MsgTextRequired
		}
	}

	s.errors = errs
	return len(errs) == 0
}

// ValidationErr runs Validate and returns a *ValidationError when it fails.
func (s *Store) ValidationErr(questions []models.Question) error {
	if s.Validate(questions) {
		return nil
	}
	return &ValidationError{Fields: s.Errors()}
}

// Format maps the stored answers to the submission wire shape, one entry per
// question in form order. Choice answers are copied verbatim; a single choice
// question holding several ids keeps them all.
func (s *Store) Format(questions []models.Question) []models.AnswerSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AnswerSubmission, 0, len(questions))
	for _, q := range questions {
		a := s.answers[q.ID]
		if q.IsChoice() {
			out = append(out, models.ChoiceAnswer(q.ID, slices.Clone(a.OptionIDs)))
			continue
		}
		out = append(out, models.TextAnswer(q.ID, a.Text))
	}
	return out
}

// FromSubmissions loads wire answers into the store, matching each to its
// question. Answers for unknown questions are rejected.
func (s *Store) FromSubmissions(questions []models.Question, subs []models.AnswerSubmission) error {
	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for _, sub := range subs {
		q, ok := byID[sub.QuestionID]
		if !ok {
			return fmt.Errorf("question %d is not part of this form", sub.QuestionID)
		}
		if q.IsChoice() {
			s.Update(q.ID, Choice(sub.OptionIDs...))
		} else {
			s.Update(q.ID, Text(sub.TextValue()))
		}
	}
	return nil
}

// Progress returns answered questions as a percentage of questions.
func Progress(questions []models.Question, s *Store) float64 {
	if len(questions) == 0 {
		return 0
	}
	answered := 0
	for _, q := range questions {
		if a, ok := s.Get(q.ID); ok && !a.IsEmpty() {
			answered++
		}
	}
	return float64(answered) / float64(len(questions)) * 100
}
