package errors

import (
	"errors"
	"testing"
)

func TestIsMatchesCode(t *testing.T) {
	err := NewInsufficientFundError("broke")
	if !Is(err, CodeInsufficientFund) {
		t.Fatalf("expected Is to match CodeInsufficientFund")
	}
	if Is(err, CodeBotError) {
		t.Fatalf("expected Is to not match a different code")
	}
}

func TestAllowRetryReflectsConstructor(t *testing.T) {
	retriable := NewBotError("stall", nil)
	if !AllowRetry(retriable) {
		t.Fatalf("expected NewBotError to be retriable")
	}
	noRetry := NewBotErrorNoRetry("bad event", nil)
	if AllowRetry(noRetry) {
		t.Fatalf("expected NewBotErrorNoRetry to not be retriable")
	}
}

func TestWrapBotCallErrorPreservesProtocolError(t *testing.T) {
	orig := NewInsufficientFundError("broke")
	wrapped := WrapBotCallError("mybot", orig)
	if !Is(wrapped, CodeInsufficientFund) {
		t.Fatalf("expected wrap to preserve original code")
	}
}

func TestWrapBotCallErrorWrapsPlainError(t *testing.T) {
	plain := errors.New("boom")
	wrapped := WrapBotCallError("mybot", plain)
	if !Is(wrapped, CodeBotError) {
		t.Fatalf("expected plain error wrapped as CodeBotError")
	}
	var pe *ProtocolError
	if !errors.As(wrapped, &pe) {
		t.Fatalf("expected errors.As to find ProtocolError")
	}
	if pe.Unwrap() != plain {
		t.Fatalf("expected cause preserved via Unwrap")
	}
}

func TestWrapBotCallErrorNilIsNil(t *testing.T) {
	if WrapBotCallError("mybot", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}
