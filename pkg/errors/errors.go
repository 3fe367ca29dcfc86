// Package errors implements the bot protocol's error taxonomy (spec.md §7).
package errors

import (
	"errors"
	"fmt"
)

// Code identifies which branch of the protocol's error taxonomy an error belongs to.
type Code string

const (
	// CodeInvalidParameter marks caller mis-wiring, e.g. both a download URL and
	// inline bytes on one upload call. Fatal to the current call, never retried.
	CodeInvalidParameter Code = "INVALID_PARAMETER"

	// CodeBotError marks a peer error event with allow_retry=true, or a transport
	// failure observed before any response was yielded. A candidate for retry.
	CodeBotError Code = "BOT_ERROR"

	// CodeBotErrorNoRetry marks a peer error event with allow_retry=false, or a
	// structurally malformed event (bad JSON, wrong field types).
	CodeBotErrorNoRetry Code = "BOT_ERROR_NO_RETRY"

	// CodeAttachmentUpload marks a non-200 response from the attachment upload
	// service, after the configured retry budget is exhausted.
	CodeAttachmentUpload Code = "ATTACHMENT_UPLOAD_ERROR"

	// CodeCostRequest marks a non-200 response, a transport failure, or a
	// missing or malformed result event from the cost authorize/capture
	// channel.
	CodeCostRequest Code = "COST_REQUEST_ERROR"

	// CodeInsufficientFund marks a cost channel result event whose status is
	// anything other than "success".
	CodeInsufficientFund Code = "INSUFFICIENT_FUND"
)

// ProtocolError is the single error type raised across the bot protocol runtime.
// Every branch of spec.md §7 is a Code value on this struct rather than a
// distinct Go type, so callers can use one errors.As call plus a Code switch.
type ProtocolError struct {
	Code      Code
	Message   string
	Err       error
	AllowRetry bool   // only meaningful for CodeBotError / CodeBotErrorNoRetry
	ErrorType string // optional machine-readable tag carried on wire error events
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewInvalidParameter reports caller mis-wiring that is fatal to the current call.
func NewInvalidParameter(message string) *ProtocolError {
	return &ProtocolError{Code: CodeInvalidParameter, Message: message}
}

// NewBotError reports a retriable peer/transport failure.
func NewBotError(message string, cause error) *ProtocolError {
	return &ProtocolError{Code: CodeBotError, Message: message, Err: cause, AllowRetry: true}
}

// NewBotErrorNoRetry reports a non-retriable peer failure or malformed event.
func NewBotErrorNoRetry(message string, cause error) *ProtocolError {
	return &ProtocolError{Code: CodeBotErrorNoRetry, Message: message, Err: cause, AllowRetry: false}
}

// NewAttachmentUploadError reports an exhausted-retries upload failure.
func NewAttachmentUploadError(message string, cause error) *ProtocolError {
	return &ProtocolError{Code: CodeAttachmentUpload, Message: message, Err: cause}
}

// NewCostRequestError reports a cost channel failure other than a
// non-success result status.
func NewCostRequestError(message string) *ProtocolError {
	return &ProtocolError{Code: CodeCostRequest, Message: message}
}

// NewInsufficientFundError reports a cost channel status other than "success".
func NewInsufficientFundError(message string) *ProtocolError {
	return &ProtocolError{Code: CodeInsufficientFund, Message: message}
}

// Is reports whether err is a ProtocolError with the given code.
func Is(err error, code Code) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// AllowRetry reports whether err is a ProtocolError explicitly marked retriable.
func AllowRetry(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.AllowRetry
	}
	return false
}

// WrapBotCallError wraps an arbitrary error raised while calling another bot as
// a non-retriable BotError carrying the target bot's name, unless it is already
// a ProtocolError (in which case it is returned unchanged so Code/AllowRetry survive).
func WrapBotCallError(botName string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProtocolError{
		Code:    CodeBotError,
		Message: fmt.Sprintf("error communicating with bot %s", botName),
		Err:     err,
	}
}
