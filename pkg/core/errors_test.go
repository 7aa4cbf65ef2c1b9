package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "session id must not be empty",
	}

	expected := "invalid_request: session id must not be empty"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrConnectionFailure,
		Message: "live endpoint closed",
		Code:    "1011",
	}

	expected := "connection_failure: live endpoint closed (code: 1011)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithUnderlying(t *testing.T) {
	underlying := errors.New("dial tcp: refused")
	err := NewConnectionFailureError("open live session", underlying)

	expected := "connection_failure: open live session: dial tcp: refused"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
}

func TestNewPermissionDeniedError(t *testing.T) {
	err := NewPermissionDeniedError("microphone unavailable", nil)
	if err.Type != ErrPermissionDenied {
		t.Errorf("Type = %v, want %v", err.Type, ErrPermissionDenied)
	}
	if err.Message != "microphone unavailable" {
		t.Errorf("Message = %q, want %q", err.Message, "microphone unavailable")
	}
}

func TestNewStorageCorruptError(t *testing.T) {
	err := NewStorageCorruptError("chatSessions", errors.New("unexpected end of JSON input"))
	if err.Type != ErrStorageCorrupt {
		t.Errorf("Type = %v, want %v", err.Type, ErrStorageCorrupt)
	}
}

func TestIsType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		typ  ErrorType
		want bool
	}{
		{"direct", NewMalformedAudioError("odd length"), ErrMalformedAudio, true},
		{"wrapped", fmt.Errorf("decode: %w", NewMalformedAudioError("odd length")), ErrMalformedAudio, true},
		{"other type", NewBackendFailureError("empty", nil), ErrMalformedAudio, false},
		{"plain error", errors.New("boom"), ErrBackendFailure, false},
		{"nil", nil, ErrBackendFailure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.typ); got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}
