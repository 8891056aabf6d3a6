package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestCortexError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      TransientProvider,
			message:   "provider unreachable",
			cause:     errors.New("connection refused"),
			wantParts: []string{"TRANSIENT_PROVIDER", "provider unreachable", "connection refused"},
		},
		{
			name:      "without cause",
			code:      SymbolNotFound,
			message:   "symbol 'foo' not found",
			cause:     nil,
			wantParts: []string{"SYMBOL_NOT_FOUND", "symbol 'foo' not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.cause)
			got := err.Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestCortexError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "something went wrong", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}

	errNoCause := Newf(Timeout, "request timed out after %dms", 30000)
	if errNoCause.Unwrap() != nil {
		t.Error("Unwrap() on error without cause should return nil")
	}
}

func TestCortexError_WithDetails(t *testing.T) {
	err := New(BudgetExceeded, "daily token budget exhausted", nil)
	details := map[string]int64{"used": 200500, "budget": 200000}

	result := err.WithDetails(details)

	if result != err {
		t.Error("WithDetails should return the same error for chaining")
	}
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(Storage, "db locked", nil)); got != Storage {
		t.Errorf("CodeOf = %v, want %v", got, Storage)
	}
	// Wrapped CortexError is still found
	wrapped := New(RateLimited, "rate ceiling hit", nil)
	if got := CodeOf(errors.Join(errors.New("outer"), wrapped)); got != RateLimited {
		t.Errorf("CodeOf wrapped = %v, want %v", got, RateLimited)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf foreign = %v, want %v", got, InternalError)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{TransientProvider, true},
		{RateLimited, true},
		{Timeout, true},
		{PermanentProvider, false},
		{Validation, false},
		{Storage, false},
		{BudgetExceeded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "x", nil)
			if got := IsTransient(err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}

	if IsTransient(errors.New("plain")) {
		t.Error("IsTransient(plain error) should be false")
	}
}

func TestErrorCodesUnique(t *testing.T) {
	codes := []ErrorCode{
		TransientProvider,
		PermanentProvider,
		Validation,
		Storage,
		Config,
		Timeout,
		RateLimited,
		BudgetExceeded,
		SymbolNotFound,
		InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %v", code)
		}
		seen[code] = true

		if string(code) == "" {
			t.Error("Error code should not be empty")
		}
	}
}
