package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         ErrorCode
		wantCategory ErrorCategory
		wantRetry    bool
	}{
		{"rate_limit", ErrCodeRateLimit, CategoryResource, true},
		{"quota", ErrCodeQuotaExceeded, CategoryResource, true},
		{"unavailable", ErrCodeUnavailable, CategoryTransient, true},
		{"timeout", ErrCodeTimeout, CategoryTransient, true},
		{"invalid_input", ErrCodeInvalidInput, CategoryPermanent, false},
		{"unauthorized", ErrCodeUnauthorized, CategoryPermanent, false},
		{"bad_response", ErrCodeBadResponse, CategoryPermanent, false},
		{"io", ErrCodeIO, CategoryInternal, false},
		{"unknown", ErrorCode("SOMETHING"), CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom")
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Retryable() != tt.wantRetry {
				t.Errorf("Retryable() = %v, want %v", err.Retryable(), tt.wantRetry)
			}
			if err.Timestamp().IsZero() {
				t.Error("Timestamp() should not be zero")
			}
		})
	}
}

func TestFromCode(t *testing.T) {
	err := FromCode(ErrCodeUnavailable, WithProvider("gemini"))
	if err.Error() != "service unavailable" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Provider() != "gemini" {
		t.Errorf("Provider() = %q", err.Provider())
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := RateLimited("daily quota gone", WithRetryable(false))
	if err.Retryable() {
		t.Error("expected override to make error non-retryable")
	}
	if !IsResource(err) {
		t.Error("override must not change category")
	}
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(ErrCodeInternal, "x", WithMetadata("k", "v"))
	md := err.Metadata()
	md["k"] = "changed"
	if err.Metadata()["k"] != "v" {
		t.Error("metadata should not be mutable through the returned map")
	}
}

func TestWrapKeepsClassification(t *testing.T) {
	inner := RateLimited("429 from provider", WithJobID("page-001-panel-1-v1"))
	wrapped := Wrap(fmt.Errorf("attempt 2: %w", inner), "render failed")

	if wrapped.Code() != ErrCodeRateLimit {
		t.Errorf("Code() = %v, want RATE_LIMITED", wrapped.Code())
	}
	if wrapped.JobID() != "page-001-panel-1-v1" {
		t.Errorf("JobID() = %q", wrapped.JobID())
	}
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should keep the chain")
	}
}

func TestWrapContextErrors(t *testing.T) {
	if c := Wrap(context.DeadlineExceeded, "call").Code(); c != ErrCodeTimeout {
		t.Errorf("deadline: got %v", c)
	}
	if c := Wrap(context.Canceled, "call").Code(); c != ErrCodeCanceled {
		t.Errorf("canceled: got %v", c)
	}
	if c := Wrap(errors.New("plain"), "call").Code(); c != ErrCodeInternal {
		t.Errorf("plain: got %v", c)
	}
	if Wrap(nil, "call") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapWithCode(t *testing.T) {
	err := WrapWithCode(errors.New("disk full"), ErrCodeIO, "write artifact")
	if err.Code() != ErrCodeIO || err.Error() != "write artifact: disk full" {
		t.Errorf("got %v / %q", err.Code(), err.Error())
	}
	if WrapWithCode(nil, ErrCodeIO, "x") != nil {
		t.Error("nil in, nil out")
	}
}

func TestPredicatesOnPlainErrors(t *testing.T) {
	plain := errors.New("plain")
	if IsRetryable(plain) || IsResource(plain) || IsTransient(plain) || IsPermanent(plain) {
		t.Error("plain errors must not match any category")
	}
	if Code(plain) != "" || Category(plain) != "" {
		t.Error("plain errors have no code or category")
	}
	if As(plain) != nil {
		t.Error("As(plain) should be nil")
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", Unavailable("503"))
	if !Is(err, ErrCodeUnavailable) {
		t.Error("expected Is to find UNAVAILABLE through wrapping")
	}
	if Is(err, ErrCodeRateLimit) {
		t.Error("unexpected match")
	}
}

func TestJSONRoundtrip(t *testing.T) {
	orig := RateLimited("slow down",
		WithCause(errors.New("HTTP 429")),
		WithMetadata("retry_after", "30s"),
		WithProvider("openai"),
		WithJobID("page-002-panel-4-v2"),
	)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Error
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Code() != orig.Code() || got.Category() != orig.Category() {
		t.Errorf("classification lost: %v/%v", got.Code(), got.Category())
	}
	if !got.Retryable() {
		t.Error("retryable flag lost")
	}
	if got.Error() != "slow down: HTTP 429" {
		t.Errorf("Error() = %q", got.Error())
	}
	if got.Metadata()["retry_after"] != "30s" {
		t.Error("metadata lost")
	}
	if got.Provider() != "openai" || got.JobID() != "page-002-panel-4-v2" {
		t.Error("provider or job id lost")
	}
	if !got.Timestamp().Equal(orig.Timestamp()) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp(), orig.Timestamp())
	}
}
