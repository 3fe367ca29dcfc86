package poe

import perrors "github.com/poe-platform/fastapi-poe/pkg/errors"

// NewBotError reports a retriable peer/transport failure, re-exported from
// pkg/errors so callers working only against the poe package don't need a
// second import for the common construction path.
func NewBotError(message string) error {
	return perrors.NewBotError(message, nil)
}

// NewBotErrorNoRetry reports a non-retriable peer failure.
func NewBotErrorNoRetry(message string) error {
	return perrors.NewBotErrorNoRetry(message, nil)
}
