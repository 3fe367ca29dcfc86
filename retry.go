package poe

import (
	"time"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
)

// RetryPolicy governs whole-stream retry behavior for BotClient, mirroring
// the teacher's AgentLoop retry-with-backoff loop
// (internal/domain/service/agent_loop.go).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy BotClient uses unless overridden.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
	}
}

// ShouldRetry reports whether another attempt should be made given the
// attempt number just completed and the error it failed with.
//
// A ProtocolError explicitly marked non-retriable (CodeBotErrorNoRetry, or
// CodeBotError with AllowRetry=false) is never retried regardless of
// attempts remaining.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if perrors.Is(err, CodeBotErrorNoRetry) {
		return false
	}
	if perrors.Is(err, CodeBotError) && !perrors.AllowRetry(err) {
		return false
	}
	return attempt < p.MaxAttempts
}

// Delay returns the backoff delay before the next attempt, doubling each
// time up to MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// CodeBotError and CodeBotErrorNoRetry are re-exported so callers depending
// only on the poe package (not pkg/errors directly) can still discriminate
// on the error taxonomy with poe.CodeBotError/poe.CodeBotErrorNoRetry.
const (
	CodeBotError        = perrors.CodeBotError
	CodeBotErrorNoRetry = perrors.CodeBotErrorNoRetry
)
