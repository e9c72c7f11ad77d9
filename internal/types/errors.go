package types

import (
	"errors"
	"fmt"
)

// Error kind constants carried across the orchestrator boundary.
const (
	KindInvalidReference = "invalid_reference"
	KindFetchError       = "fetch_error"
	KindEmptyTranscript  = "empty_transcript"
	KindSummarization    = "summarization_error"
	KindAssembly         = "assembly_error"
	KindCancelled        = "cancelled"
)

// ConversionError tags a pipeline failure with its kind. The message is the
// short, user-visible form; the wrapped cause stays in the logs.
type ConversionError struct {
	Kind    string
	Message string
	cause   error
}

// NewConversionError builds a stage-tagged error around an optional cause.
func NewConversionError(kind, message string, cause error) *ConversionError {
	return &ConversionError{Kind: kind, Message: message, cause: cause}
}

func (e *ConversionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ConversionError) Unwrap() error { return e.cause }

// UserMessage is what subscribers and HTTP clients see. Never a stack trace.
func (e *ConversionError) UserMessage() string { return e.Message }

// AsConversionError returns err as a *ConversionError, wrapping unknown
// errors under the given fallback kind.
func AsConversionError(err error, fallbackKind string) *ConversionError {
	if err == nil {
		return nil
	}
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConversionError{Kind: fallbackKind, Message: "conversion failed", cause: err}
}
