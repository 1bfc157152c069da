// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNetwork  = errors.New("network error")
	ErrAuth     = errors.New("authentication required")
	ErrNotFound = errors.New("not found")
	ErrAccess   = errors.New("access denied")
	ErrAPI      = errors.New("api error")
)

// APIError is a non-2xx response. It unwraps to one of ErrAuth, ErrNotFound,
// ErrAccess or ErrAPI depending on the status code.
type APIError struct {
	StatusCode int
	Message    string
}

var _ error = (*APIError)(nil)

func newAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message}
}

func (err *APIError) kind() error {
	switch err.StatusCode {
	case http.StatusUnauthorized:
		return ErrAuth
	case http.StatusForbidden:
		return ErrAccess
	case http.StatusNotFound:
		return ErrNotFound
	}
	return ErrAPI
}

func (err *APIError) Error() string {
	if err == nil {
		return "(*APIError)(nil)"
	}
	msg := fmt.Sprintf("%s: status %d", err.kind().Error(), err.StatusCode)
	if err.Message != "" {
		msg += ": " + err.Message
	}
	return msg
}

func (err *APIError) Unwrap() error {
	return err.kind()
}

type wrapError struct {
	underlying error
	msg        string
	cause      error
}

var _ error = (*wrapError)(nil)

func newNetworkError(msg string, cause error) error {
	return &wrapError{underlying: ErrNetwork, msg: msg, cause: cause}
}

func newAuthError(msg string, cause error) error {
	return &wrapError{underlying: ErrAuth, msg: msg, cause: cause}
}

func (err *wrapError) Error() string {
	if err == nil {
		return "(*wrapError)(nil)"
	}
	message := err.underlying.Error() + ": " + err.msg
	if err.cause != nil {
		message += ": " + err.cause.Error()
	}
	return message
}

func (err *wrapError) Unwrap() []error {
	if err.cause == nil {
		return []error{err.underlying}
	}
	return []error{err.underlying, err.cause}
}

// Message returns the backend's message carried by err, or "" when err did
// not come from an error response.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
