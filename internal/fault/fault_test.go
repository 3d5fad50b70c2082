package fault

import (
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain", errors.New("boom"), KindNone},
		{"timeout", &TimeoutError{Command: "aider", Budget: time.Second}, KindTimeout},
		{"process", &ProcessError{Command: "aider", ExitCode: 2}, KindProcess},
		{"validation", &ValidationError{Field: "instruction", Reason: "empty"}, KindValidation},
		{"rate limit", &RateLimitError{Limit: 60, Window: time.Minute}, KindRateLimit},
		{
			"max retries wraps timeout",
			&MaxRetriesError{Attempts: 3, Cause: &TimeoutError{Command: "aider", Budget: time.Second}},
			KindMaxRetries,
		},
		{
			"wrapped timeout",
			fmt.Errorf("session: %w", &TimeoutError{Command: "aider", Budget: time.Second}),
			KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaxRetriesPreservesCause(t *testing.T) {
	t.Parallel()

	cause := &TimeoutError{Command: "aider", Budget: 300 * time.Second}
	err := &MaxRetriesError{Attempts: 3, Cause: cause}

	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatal("cause not reachable through MaxRetriesError")
	}
	if timeout.Budget != 300*time.Second {
		t.Errorf("cause budget = %s, want 300s", timeout.Budget)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &TimeoutError{Command: "aider", Budget: time.Second}, true},
		{"io process error", &ProcessError{Op: "read", Command: "aider", Err: errors.New("pipe closed")}, true},
		{"nonzero exit", &ProcessError{Command: "aider", ExitCode: 1}, true},
		{"executable missing", &ProcessError{Op: "start", Command: "aider", NotFound: true}, false},
		{"validation", &ValidationError{Reason: "empty instruction"}, false},
		{"rate limit", &RateLimitError{Limit: 60, Window: time.Minute}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewProcessErrorFlagsMissingExecutable(t *testing.T) {
	t.Parallel()

	err := NewProcessError("start", "aider", -1, fmt.Errorf("exec: %w", exec.ErrNotFound))
	if !err.NotFound {
		t.Error("expected NotFound for exec.ErrNotFound")
	}
	if Retryable(err) {
		t.Error("missing executable must not be retryable")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{&TimeoutError{Command: "aider", Budget: time.Second}, http.StatusRequestTimeout},
		{&ValidationError{Reason: "empty"}, http.StatusBadRequest},
		{&ProcessError{Command: "aider", ExitCode: 1}, http.StatusInternalServerError},
		{&MaxRetriesError{Attempts: 3, Cause: errors.New("x")}, http.StatusServiceUnavailable},
		{&RateLimitError{Limit: 60, Window: time.Minute}, http.StatusServiceUnavailable},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
