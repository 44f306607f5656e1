package engine

import (
	"errors"
	"fmt"
)

// QueryError represents a query the engine refused to run.
//
// Query errors include:
//   - Invalid query: the plan failed validation (negative limit, empty names)
//   - Missing user: subscribe or register without a requester
//   - Unsupported query: a QueryPart variant the engine does not know
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string

	// Command is the command of the offending query, if any.
	Command string
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeInvalidQuery indicates the compiled plan failed validation.
	ErrCodeInvalidQuery QueryErrorCode = "INVALID_QUERY"

	// ErrCodeMissingUser indicates an action needs a requester but none was given.
	ErrCodeMissingUser QueryErrorCode = "MISSING_USER"

	// ErrCodeUnsupportedQuery indicates an unknown QueryPart variant.
	ErrCodeUnsupportedQuery QueryErrorCode = "UNSUPPORTED_QUERY"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %s (command=%s)", e.Code, e.Message, e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsQueryError reports whether err is a QueryError, returning it.
// Uses errors.As to handle wrapped errors.
func IsQueryError(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

func newMissingUserError(command, action string) *QueryError {
	return &QueryError{
		Code:    ErrCodeMissingUser,
		Message: action + " requires a user",
		Command: command,
	}
}
