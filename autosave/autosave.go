// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/quickly-form/models"
)

const (
	DefaultDelay   = 2 * time.Second
	DefaultTimeout = 15 * time.Second

	// MsgSaveFailed is passed to the Notifier when a draft could not be saved.
	MsgSaveFailed = "Failed to auto-save your progress"
)

type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// Saver persists a draft. apiclient.Client satisfies it.
type Saver interface {
	SaveDraft(ctx context.Context, req models.SaveDraftRequest) (*models.DraftSubmission, error)
}

// PayloadFunc returns the draft to send and whether any answers exist.
// It is called when the timer fires so the latest state is sent.
type PayloadFunc func() (req models.SaveDraftRequest, hasAnswers bool)

// Notifier receives user-visible failure messages.
type Notifier interface {
	Notify(msg string, err error)
}

type NotifierFunc func(msg string, err error)

func (f NotifierFunc) Notify(msg string, err error) { f(msg, err) }

// Timer is the handle returned by a TimerFunc.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules f after d. time.AfterFunc is the default.
type TimerFunc func(d time.Duration, f func()) Timer

type Option func(*Scheduler)

func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

// WithTimeout bounds each save request started by the timer.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

func WithTimerFunc(f TimerFunc) Option {
	return func(s *Scheduler) { s.afterFunc = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler debounces draft saves. Every Arm restarts the delay window, so a
// burst of edits produces one save carrying the state after the last edit.
type Scheduler struct {
	saver    Saver
	payload  PayloadFunc
	delay    time.Duration
	timeout  time.Duration
	notifier Notifier
	logger   *slog.Logger

	afterFunc TimerFunc

	mu       sync.Mutex
	timer    Timer
	gen      uint64
	lastSent []byte
	stopped  bool

	inflight sync.WaitGroup
}

func New(saver Saver, payload PayloadFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		saver:   saver,
		payload: payload,
		delay:   DefaultDelay,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm cancels any pending save and schedules a new one after the delay.
func (s *Scheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.stopTimerLocked()
	s.gen++
	gen := s.gen
	s.timer = s.afterFunc(s.delay, func() { s.fire(gen) })
}

// Cancel drops a pending save without sending it.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// State reports whether a save is waiting on the timer.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return Pending
	}
	return Idle
}

// Flush cancels the timer and, when any answers exist, sends the current
// draft immediately and waits for the response.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.Cancel()

	req, hasAnswers := s.payload()
	if !hasAnswers {
		return nil
	}
	body, send := s.claim(req)
	if !send {
		return nil
	}

	s.inflight.Add(1)
	defer s.inflight.Done()
	return s.send(ctx, req, body)
}

// Stop cancels any pending save and rejects further Arm calls. It waits for
// saves already in flight to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.stopTimerLocked()
	s.mu.Unlock()

	s.inflight.Wait()
}

// Reset forgets the last sent payload so the next save is never skipped.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSent = nil
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		// superseded by a later Arm or cancelled
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	req, hasAnswers := s.payload()
	if !hasAnswers {
		return
	}
	body, send := s.claim(req)
	if !send {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_ = s.send(ctx, req, body)
}

// claim encodes req and records it as the dedup baseline. It returns false
// when req matches the previous baseline.
func (s *Scheduler) claim(req models.SaveDraftRequest) ([]byte, bool) {
	body, err := json.Marshal(req)
	if err != nil {
		s.logger.Error("failed to encode draft", "form_id", req.FormID, "error", err)
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSent != nil && bytes.Equal(body, s.lastSent) {
		s.logger.Debug("draft unchanged, skipping save", "form_id", req.FormID)
		return nil, false
	}
	s.lastSent = body
	return body, true
}

func (s *Scheduler) send(ctx context.Context, req models.SaveDraftRequest, body []byte) error {
	start := time.Now()
	_, err := s.saver.SaveDraft(ctx, req)
	if err != nil {
		s.logger.Warn("draft save failed", "form_id", req.FormID, "error", err)
		if s.notifier != nil {
			s.notifier.Notify(MsgSaveFailed, err)
		}
		return fmt.Errorf("save draft: %w", err)
	}

	s.logger.Debug("draft saved",
		"form_id", req.FormID,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
