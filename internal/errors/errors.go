package errors

import "fmt"

// ErrorCode represents a TabTriage error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrUnknownTarget  ErrorCode = "UNKNOWN_TARGET"  // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// TriageError represents a structured error with code, status, and details.
type TriageError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TriageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TriageError {
	return &TriageError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnknownTarget creates a 400 error for an unrecognized forwarding target.
func NewUnknownTarget(target string) *TriageError {
	return &TriageError{
		Code:    ErrUnknownTarget,
		Status:  400,
		Message: fmt.Sprintf("unknown forwarding target: %q", target),
		Details: map[string]any{"target": target},
	}
}

// NewNotFound creates a 404 error for a missing tab, session, or batch.
func NewNotFound(identifier string) *TriageError {
	return &TriageError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TriageError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TriageError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a TriageError with the given code.
func Is(err error, code ErrorCode) bool {
	if tErr, ok := err.(*TriageError); ok {
		return tErr.Code == code
	}
	return false
}
