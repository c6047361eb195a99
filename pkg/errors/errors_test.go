package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidTarget, "%s@%s does not exist", "react", "99.0.0")

	if err.Code != ErrCodeInvalidTarget {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidTarget)
	}
	if err.Message != "react@99.0.0 does not exist" {
		t.Errorf("Message = %v", err.Message)
	}

	expected := "INVALID_TARGET: react@99.0.0 does not exist"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeNetwork, cause, "failed to fetch")

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap() did not return the cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{"matching code", New(ErrCodeNoNewSuggestion, "x"), ErrCodeNoNewSuggestion, true},
		{"non-matching code", New(ErrCodeNoNewSuggestion, "x"), ErrCodeNetwork, false},
		{"outer code wins", Wrap(ErrCodeSuggestionExhausted, New(ErrCodeAIResponseFormat, "inner"), "outer"), ErrCodeSuggestionExhausted, true},
		{"fmt wrapped", fmt.Errorf("attempt 3: %w", New(ErrCodeTimeout, "install")), ErrCodeTimeout, true},
		{"plain error", errors.New("plain"), ErrCodeInvalidInput, false},
		{"nil error", nil, ErrCodeInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCodeAndDetails(t *testing.T) {
	err := fmt.Errorf("round 2: %w", New(ErrCodePackageVersionValidation, "invalid").WithDetails("pkgc@9.9.9", "pkgd@0.0.0"))

	if got := GetCode(err); got != ErrCodePackageVersionValidation {
		t.Errorf("GetCode() = %v", got)
	}
	if got := GetDetails(err); len(got) != 2 || got[0] != "pkgc@9.9.9" {
		t.Errorf("GetDetails() = %v", got)
	}
	if GetCode(errors.New("plain")) != "" {
		t.Error("GetCode(plain) should be empty")
	}
	if GetDetails(nil) != nil {
		t.Error("GetDetails(nil) should be nil")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(New(ErrCodeInvalidInput, "friendly message")); got != "friendly message" {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(errors.New("plain error")); got != "plain error" {
		t.Errorf("UserMessage() = %q", got)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		protocol bool
		fatal    bool
	}{
		{"format", New(ErrCodeAIResponseFormat, "x"), true, false},
		{"validation", New(ErrCodePackageVersionValidation, "x"), true, false},
		{"noop", New(ErrCodeNoNewSuggestion, "x"), true, false},
		{"no suitable version", New(ErrCodeNoSuitableVersion, "x"), false, true},
		{"invalid target", New(ErrCodeInvalidTarget, "x"), false, true},
		{"exhausted", New(ErrCodeSuggestionExhausted, "x"), false, false},
		{"canceled", fmt.Errorf("install: %w", context.Canceled), false, true},
		{"network", New(ErrCodeNetwork, "x"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSuggestionProtocol(tt.err); got != tt.protocol {
				t.Errorf("IsSuggestionProtocol() = %v, want %v", got, tt.protocol)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout(fmt.Errorf("run: %w", context.DeadlineExceeded), "npm install exceeded %s", "5m")
	if !Is(err, ErrCodeTimeout) {
		t.Fatalf("Timeout() = %v, want TIMEOUT code", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Timeout() should keep the deadline error in the chain")
	}

	plain := errors.New("exit status 1")
	if Timeout(plain, "x") != plain {
		t.Error("Timeout() should pass through non-deadline errors")
	}
}

func TestRateLimitedError(t *testing.T) {
	err := &RateLimitedError{RetryAfter: 60}
	if err.Error() != "rate limited: retry after 60 seconds" {
		t.Errorf("Error() = %v", err.Error())
	}
	if (&RateLimitedError{}).Error() != "rate limited" {
		t.Error("Error() without RetryAfter")
	}
	if err.Code() != ErrCodeRateLimited {
		t.Errorf("Code() = %v", err.Code())
	}
}
