package domain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// AppError carries a stable code, the HTTP status it maps to and the
// operation that failed
type AppError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Cause      error     `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error wrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// RequestIDKey is the context key the request id middleware stores under
const RequestIDKey = "requestid"

// WithContext records the request id found in ctx and the failed operation
func (e *AppError) WithContext(ctx context.Context, operation string) *AppError {
	if ctx != nil {
		if id, ok := ctx.Value(RequestIDKey).(string); ok {
			e.RequestID = id
		}
	}
	e.Operation = operation
	return e
}

// Error codes for different error categories
const (
	ErrInvalidInput     = "INVALID_INPUT"     // 400 Bad Request
	ErrValidationFailed = "VALIDATION_FAILED" // 422 Unprocessable Entity
	ErrNotFound         = "NOT_FOUND"         // 404 Not Found
	ErrConflict         = "CONFLICT"          // 409 Conflict
	ErrInternal         = "INTERNAL_ERROR"    // 500 Internal Server Error
	ErrTimeout          = "TIMEOUT"           // 408 Request Timeout
	ErrTooLarge         = "PAYLOAD_TOO_LARGE" // 413 Payload Too Large
	ErrRateLimit        = "RATE_LIMIT"        // 429 Too Many Requests

	// Filter storage error codes
	ErrSchemaMismatch   = "SCHEMA_VERSION_MISMATCH" // 422 Unknown stored schema version
	ErrSourceMissing    = "SOURCE_FILE_MISSING"     // 404 Source file not found on disk
	ErrOffsetOutOfRange = "OFFSET_OUT_OF_RANGE"     // 422 Origin offset outside the source
	ErrConflictOrigin   = "CONFLICTING_ORIGIN"      // 422 Stored origin contradicts the caller
	ErrSessionActive    = "SESSION_ACTIVE"          // 409 Another editing session is open
	ErrNoSession        = "NO_SESSION"              // 409 No editing session is open
	ErrImportFailed     = "IMPORT_FAILED"           // 500 Import failed
	ErrExportFailed     = "EXPORT_FAILED"           // 500 Export failed
)

// NewAppError creates a new AppError with the specified parameters
func NewAppError(code, message string, statusCode int, details any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
		Timestamp:  time.Now(),
	}
}

// NewAppErrorWithCause creates a new AppError with underlying cause
func NewAppErrorWithCause(code, message string, statusCode int, cause error, details any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

// Code returns the code of the first AppError in err's chain, or "" if
// there is none
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func hasCode(err error, codes ...string) bool {
	code := Code(err)
	return code != "" && slices.Contains(codes, code)
}

// IsTimeout checks if the error is a timeout error
func IsTimeout(err error) bool {
	return hasCode(err, ErrTimeout)
}

// IsNotFound reports a missing rule, source or file
func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound, ErrSourceMissing)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return hasCode(err, ErrValidationFailed, ErrInvalidInput, ErrOffsetOutOfRange)
}

// IsConflict reports a duplicate adoption or an already open session
func IsConflict(err error) bool {
	return hasCode(err, ErrConflict, ErrSessionActive, ErrConflictOrigin)
}

// IsSchemaMismatch checks if the error reports an unknown schema version
func IsSchemaMismatch(err error) bool {
	return hasCode(err, ErrSchemaMismatch)
}
