package core

import (
	"errors"
	"fmt"
)

// Error is the error type surfaced by the voice and chat pipelines.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest    ErrorType = "invalid_request"
	ErrPermissionDenied  ErrorType = "permission_denied"
	ErrConnectionFailure ErrorType = "connection_failure"
	ErrMalformedAudio    ErrorType = "malformed_audio"
	ErrBackendFailure    ErrorType = "backend_failure"
	ErrStorageCorrupt    ErrorType = "storage_corrupt"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewPermissionDeniedError reports a refused or missing microphone.
func NewPermissionDeniedError(message string, err error) *Error {
	return &Error{
		Type:    ErrPermissionDenied,
		Message: message,
		Err:     err,
	}
}

// NewConnectionFailureError reports a transport that could not open or dropped.
func NewConnectionFailureError(message string, err error) *Error {
	return &Error{
		Type:    ErrConnectionFailure,
		Message: message,
		Err:     err,
	}
}

// NewMalformedAudioError reports PCM data that violates the wire format.
func NewMalformedAudioError(message string) *Error {
	return &Error{
		Type:    ErrMalformedAudio,
		Message: message,
	}
}

// NewBackendFailureError wraps a failed or empty model call.
func NewBackendFailureError(message string, err error) *Error {
	return &Error{
		Type:    ErrBackendFailure,
		Message: message,
		Err:     err,
	}
}

// NewStorageCorruptError reports a persisted value that failed to parse.
func NewStorageCorruptError(key string, err error) *Error {
	return &Error{
		Type:    ErrStorageCorrupt,
		Message: fmt.Sprintf("stored value %q is corrupt", key),
		Err:     err,
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err wraps a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}
