// Package domainerrors carries the SDK's error taxonomy. Components return coded
// errors so callers can branch on the failure class without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	// CodeAttributeUnavailable marks a single data source that failed or timed out.
	// It degrades gracefully and is never fatal.
	CodeAttributeUnavailable Code = "attribute_unavailable"
	// CodeTransportFailure covers connection, timeout, protocol and decoding failures.
	CodeTransportFailure Code = "transport_failure"
	// CodeProfileSyncTimeout is returned when a confirmed profile was not ready in time.
	CodeProfileSyncTimeout Code = "profile_sync_timeout"
	// CodeConfiguration marks invalid or missing configuration.
	CodeConfiguration Code = "configuration_error"
	CodeInvalidInput  Code = "invalid_input"
	CodeInternal      Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
