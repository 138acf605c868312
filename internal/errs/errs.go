// Package errs defines the error taxonomy that routes pipeline and
// session behaviour: retryable conditions are retried locally with
// backoff, content and parse conditions send the cycle back to foraging,
// and fatal conditions end the session.
package errs

import (
	"errors"
	"fmt"
)

// RetryableError marks transient failures (timeouts, rate limits,
// network hiccups) that should be retried with backoff before escalating.
type RetryableError struct {
	Reason string
	Err    error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retryable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("retryable (%s)", e.Reason)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryable wraps err as a retryable failure.
func NewRetryable(reason string, err error) *RetryableError {
	return &RetryableError{Reason: reason, Err: err}
}

// ContentError marks content that cannot produce an artifact (too short,
// wrong language, low quality, duplicate). Never retried; the cycle
// returns to foraging.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string { return fmt.Sprintf("content rejected: %s", e.Reason) }

// NewContent reports unusable content.
func NewContent(reason string) *ContentError { return &ContentError{Reason: reason} }

// ParseError marks a structured LLM response that stayed malformed after
// recovery attempts were exhausted. Routed like a content failure.
type ParseError struct {
	Call     string // Which structured call failed
	Attempts int
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for %s after %d attempts: %v", e.Call, e.Attempts, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParse reports an unrecoverable structured-response parse failure.
func NewParse(call string, attempts int, err error) *ParseError {
	return &ParseError{Call: call, Attempts: attempts, Err: err}
}

// FatalError marks unrecoverable conditions (storage unreachable, invalid
// configuration, authentication failure). The session ends immediately.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal (%s)", e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Err }

// NewFatal wraps err as a session-ending failure.
func NewFatal(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

// IsRetryable reports whether err is (or wraps) a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsContent reports whether err is (or wraps) a ContentError.
func IsContent(err error) bool {
	var ce *ContentError
	return errors.As(err, &ce)
}

// IsParse reports whether err is (or wraps) a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
