package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewInvalidInputError("group name is empty")
	want := "INVALID_INPUT: group name is empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAppError_ErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewBackendGatewayError(cause)

	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() should name the cause, got: %v", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through the wrap")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewNotFoundError("backend session").
		WithContext("client_id", "7").
		WithContext("attempt", 2)

	if err.Context["client_id"] != "7" {
		t.Errorf("Context[client_id] = %v, want 7", err.Context["client_id"])
	}
	if err.Context["attempt"] != 2 {
		t.Errorf("Context[attempt] = %v, want 2", err.Context["attempt"])
	}
}

func TestConstructors_StatusAndCode(t *testing.T) {
	cases := []struct {
		err        *AppError
		wantCode   ErrorCode
		wantStatus int
	}{
		{NewInvalidInputError("x"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFoundError("voice note"), ErrCodeNotFound, http.StatusNotFound},
		{NewConflictError("x"), ErrCodeConflict, http.StatusConflict},
		{NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewInternalError("x"), ErrCodeInternal, http.StatusInternalServerError},
		{NewServiceUnavailableError("x"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
		{NewBackendGatewayError(errors.New("x")), ErrCodeBackendGateway, http.StatusBadGateway},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.wantCode {
			t.Errorf("code = %v, want %v", tc.err.Code, tc.wantCode)
		}
		if tc.err.HTTPStatus != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.wantCode, tc.err.HTTPStatus, tc.wantStatus)
		}
	}
}

func TestNotFoundError_Message(t *testing.T) {
	err := NewNotFoundError("voice note")
	if err.Message != "voice note not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(NewInternalError("x")) {
		t.Error("IsAppError should accept an AppError")
	}
	if IsAppError(errors.New("plain")) {
		t.Error("IsAppError should reject a plain error")
	}
}

func TestGetAppError_UnwrapsChain(t *testing.T) {
	app := NewBackendGatewayError(errors.New("broken pipe"))
	wrapped := fmt.Errorf("sending voice note: %w", app)

	got := GetAppError(wrapped)
	if got == nil {
		t.Fatal("expected to find the AppError in the chain")
	}
	if got.Code != ErrCodeBackendGateway {
		t.Errorf("code = %v, want %v", got.Code, ErrCodeBackendGateway)
	}

	if GetAppError(errors.New("plain")) != nil {
		t.Error("expected nil for a chain without an AppError")
	}
	if GetAppError(nil) != nil {
		t.Error("expected nil for nil input")
	}
}
