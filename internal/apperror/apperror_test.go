package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{http.StatusBadRequest, CodeBadRequest},
		{http.StatusUnauthorized, CodeAuthRequired},
		{http.StatusForbidden, CodePermissionDenied},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusConflict, CodeConflict},
		{http.StatusTooManyRequests, CodeRateLimitExceeded},
		{http.StatusInternalServerError, CodeInternal},
		{http.StatusServiceUnavailable, CodeInternal},
		{http.StatusTeapot, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := CodeForStatus(tt.status); got != tt.want {
				t.Errorf("CodeForStatus(%d) = %d, want %d", tt.status, got, tt.want)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	nf := NotFound("case file not found")
	wrapped := fmt.Errorf("load: %w", nf)

	got := FromError(wrapped)
	if got != nf {
		t.Fatalf("FromError did not unwrap AppError, got %v", got)
	}
	if got.Status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", got.Status)
	}

	plain := errors.New("boom")
	got = FromError(plain)
	if got.Code != CodeInternal || got.Status != http.StatusInternalServerError {
		t.Errorf("Expected internal error, got code=%d status=%d", got.Code, got.Status)
	}
	if !errors.Is(got, plain) {
		t.Error("Expected internal error to wrap the cause")
	}

	if FromError(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", TooManyRequests("slow down"))
	if !Is(err, CodeRateLimitExceeded) {
		t.Error("Expected rate limit code to be detected")
	}
	if Is(err, CodeNotFound) {
		t.Error("Did not expect not found code")
	}
	if Is(errors.New("plain"), CodeInternal) {
		t.Error("Plain errors carry no code")
	}
}
