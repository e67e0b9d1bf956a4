package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	ErrorTypeInvalidArgument   ErrorType = "INVALID_ARGUMENT"
	ErrorTypeInvalidState      ErrorType = "INVALID_STATE"
	ErrorTypeCodecFailure      ErrorType = "CODEC_FAILURE"
	ErrorTypeResourceExhausted ErrorType = "RESOURCE_EXHAUSTED"
	ErrorTypeNotFound          ErrorType = "NOT_FOUND"
	ErrorTypeInternal          ErrorType = "INTERNAL_ERROR"
	ErrorTypeServiceDown       ErrorType = "SERVICE_DOWN"
	ErrorTypeRateLimited       ErrorType = "RATE_LIMITED"
)

// AppError represents an error with additional context.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError of the same type and code.
// A target without a code matches any error of its type.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCode adds an error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// HTTPStatus maps the error type onto an HTTP status code.
func (e *AppError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeInvalidArgument:
		return http.StatusBadRequest
	case ErrorTypeInvalidState:
		return http.StatusConflict
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeResourceExhausted:
		return http.StatusInsufficientStorage
	case ErrorTypeServiceDown:
		return http.StatusServiceUnavailable
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// NewInvalidArgument creates an error for an out-of-contract caller value.
func NewInvalidArgument(format string, args ...interface{}) *AppError {
	return New(ErrorTypeInvalidArgument, fmt.Sprintf(format, args...))
}

// NewInvalidState creates an error for an operation that is not legal in
// the current lifecycle state.
func NewInvalidState(format string, args ...interface{}) *AppError {
	return New(ErrorTypeInvalidState, fmt.Sprintf(format, args...))
}

// WrapCodecFailure wraps an unrecoverable codec engine error.
func WrapCodecFailure(err error, message string) *AppError {
	return Wrap(err, ErrorTypeCodecFailure, message)
}

// NewResourceExhausted creates an allocation failure error.
func NewResourceExhausted(format string, args ...interface{}) *AppError {
	return New(ErrorTypeResourceExhausted, fmt.Sprintf(format, args...))
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message)
}

// WrapInternalError wraps an error as internal error.
func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message)
}

// NewServiceDownError creates a service down error.
func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s service is currently unavailable", service))
}

// IsAppError checks if an error is, or wraps, an AppError.
func IsAppError(err error) bool {
	_, ok := GetAppError(err)
	return ok
}

// GetAppError extracts the first AppError in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Type == errType
}
