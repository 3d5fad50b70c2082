// Package fault defines the error taxonomy shared by the remediation
// pipeline. Every failure the session, retry, and rate-limit layers can
// produce maps to exactly one Kind so callers can branch on errors.As
// without string matching.
package fault

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"
)

// Kind classifies a remediation failure.
type Kind string

const (
	KindNone       Kind = ""
	KindTimeout    Kind = "timeout"
	KindProcess    Kind = "process"
	KindMaxRetries Kind = "max_retries"
	KindValidation Kind = "validation"
	KindRateLimit  Kind = "rate_limit"
)

// TimeoutError reports a child process that exceeded its wall-clock budget
// and was forcibly terminated.
type TimeoutError struct {
	Command string
	Budget  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.Budget)
}

// ProcessError reports a child process failure: non-zero exit, a missing
// executable, or a pipe I/O error while the session was pumping lines.
type ProcessError struct {
	Op       string // start, read, write, wait
	Command  string
	ExitCode int
	NotFound bool // executable missing; never retryable
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Command, e.Op, e.Err)
	}
	return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// NewProcessError wraps err with process context, flagging missing
// executables so the retry policy treats them as permanent.
func NewProcessError(op, command string, exitCode int, err error) *ProcessError {
	return &ProcessError{
		Op:       op,
		Command:  command,
		ExitCode: exitCode,
		NotFound: errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist),
		Err:      err,
	}
}

// MaxRetriesError reports an exhausted retry budget. The final underlying
// error is preserved as the cause.
type MaxRetriesError struct {
	Attempts int
	Cause    error
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *MaxRetriesError) Unwrap() error { return e.Cause }

// ValidationError reports rejected input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RateLimitError reports a refused call because the sliding window is at
// capacity. RetryAfter is the wait until the oldest entry ages out.
type RateLimitError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d calls per %s exceeded", e.Limit, e.Window)
}

// KindOf returns the taxonomy kind of err, walking the wrap chain.
// A MaxRetriesError reports its own kind, not the kind of its cause.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		timeout    *TimeoutError
		process    *ProcessError
		maxRetries *MaxRetriesError
		validation *ValidationError
		rateLimit  *RateLimitError
	)
	switch {
	case errors.As(err, &maxRetries):
		return KindMaxRetries
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &rateLimit):
		return KindRateLimit
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &process):
		return KindProcess
	}
	return KindNone
}

// Retryable reports whether err is transient: a timeout, or a process
// error not caused by a missing executable. Everything else is permanent.
func Retryable(err error) bool {
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var process *ProcessError
	if errors.As(err, &process) {
		return !process.NotFound
	}
	return false
}

// HTTPStatus maps a fault kind to the status the web layer reports.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindValidation:
		return http.StatusBadRequest
	case KindProcess:
		return http.StatusInternalServerError
	case KindMaxRetries, KindRateLimit:
		return http.StatusServiceUnavailable
	case KindNone:
	}
	return http.StatusInternalServerError
}
