package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Common domain error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeAuthFailure         = "AUTH_FAILURE"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeEmptyResult         = "EMPTY_RESULT"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

var (
	// ErrBlueskyAuthFailed means the session with the post source could not
	// be established. It is the only fault allowed to abort a pipeline run.
	ErrBlueskyAuthFailed = NewDomainError(ErrCodeAuthFailure, "bluesky authentication failed")

	// ErrEmptyQuestion is returned when a request carries no question text.
	ErrEmptyQuestion = NewDomainError(ErrCodeValidation, "question must not be empty")

	// ErrNoRelevantPosts is the terminal "nothing found" outcome; it is
	// surfaced to the user as a message, never as a crash.
	ErrNoRelevantPosts = NewDomainError(ErrCodeEmptyResult, "no relevant posts found")
)
