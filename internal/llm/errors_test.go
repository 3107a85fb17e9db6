package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	auth := &APIError{StatusCode: 401, Message: "expired token"}
	rate := &APIError{StatusCode: 429, Message: "slow down", RetryAfter: 5 * time.Second}
	server := &APIError{StatusCode: 500, Message: "boom"}

	if !IsAuthError(auth) || IsAuthError(rate) || IsAuthError(server) {
		t.Fatal("auth classification wrong")
	}
	if !IsRateLimitError(rate) || IsRateLimitError(auth) {
		t.Fatal("rate-limit classification wrong")
	}
	if !IsTransient(auth) || !IsTransient(rate) || IsTransient(server) {
		t.Fatal("transient classification wrong")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatal("plain errors must not be transient")
	}
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("invoke agent: %w", &APIError{StatusCode: 429, RetryAfter: 3 * time.Second})
	if !IsRateLimitError(wrapped) {
		t.Fatal("expected rate-limit detection through wrapping")
	}
	hint, ok := RetryAfterHint(wrapped)
	if !ok || hint != 3*time.Second {
		t.Fatalf("expected 3s retry-after hint, got %v ok=%v", hint, ok)
	}
}

func TestRetryAfterHintAbsent(t *testing.T) {
	if _, ok := RetryAfterHint(&APIError{StatusCode: 429}); ok {
		t.Fatal("expected no hint when provider gave none")
	}
}
