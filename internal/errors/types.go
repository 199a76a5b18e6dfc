// Package errors provides the structured error type shared by the
// classifier, the manifest writer, configuration loading and the server.
//
// A StudioError carries a category, a stable code and optional location
// context so the CLI can print suggestions and the dev server can forward
// the message to connected browsers.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeManifest   ErrorType = "manifest"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidPath     = "ERR_INVALID_PATH"
	ErrCodePathTraversal   = "ERR_PATH_TRAVERSAL"
	ErrCodeInvalidOrigin   = "ERR_INVALID_ORIGIN"
	ErrCodeRouteConflict   = "ERR_ROUTE_CONFLICT"
	ErrCodeManifestWrite   = "ERR_MANIFEST_WRITE"
	ErrCodeManifestStale   = "ERR_MANIFEST_STALE"
	ErrCodeWalkFailed      = "ERR_WALK_FAILED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeCounterNotFound = "ERR_COUNTER_NOT_FOUND"
	ErrCodeInvalidCounter  = "ERR_INVALID_COUNTER"
	ErrCodeCounterLimit    = "ERR_COUNTER_LIMIT"
	ErrCodeInvalidStatus   = "ERR_INVALID_STATUS"
	ErrCodeInternalError   = "ERR_INTERNAL"
)

// StudioError is a structured error type with context.
type StudioError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *StudioError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *StudioError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StudioError with the same type and code.
func (e *StudioError) Is(target error) bool {
	var t *StudioError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *StudioError) WithContext(key string, value interface{}) *StudioError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath adds file location information.
func (e *StudioError) WithPath(filePath string) *StudioError {
	e.FilePath = filePath

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *StudioError {
	return &StudioError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *StudioError {
	return &StudioError{
		Type:    ErrorTypeSecurity,
		Code:    code,
		Message: message,
	}
}

// NewManifestError creates an error raised while collecting or writing the
// manifest. Manifest errors are recoverable in dev mode: the next file
// change triggers a fresh attempt.
func NewManifestError(code, message string, cause error) *StudioError {
	return &StudioError{
		Type:        ErrorTypeManifest,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *StudioError {
	return &StudioError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *StudioError {
	return &StudioError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *StudioError {
	return &StudioError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *StudioError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// HasCode reports whether any StudioError in err's chain carries code.
func HasCode(err error, code string) bool {
	var se *StudioError
	for err != nil {
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}

	return false
}

// Logger is the subset of the logging interface the handler needs.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler logs errors with severity chosen by their type.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error with appropriate logging.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var se *StudioError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch se.Type {
	case ErrorTypeManifest, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Recoverable error occurred",
			"type", se.Type,
			"code", se.Code,
			"file", se.FilePath)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", se.Type,
			"code", se.Code,
			"file", se.FilePath)
	}
}

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *StudioError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrInvalidOrigin creates an invalid origin security error.
func ErrInvalidOrigin(origin string) *StudioError {
	return NewSecurityError(ErrCodeInvalidOrigin, "invalid origin: "+origin)
}

// ErrCounterNotFound creates an error for an unknown counter island id.
func ErrCounterNotFound(id string) *StudioError {
	return NewValidationError(ErrCodeCounterNotFound, "counter not found: "+id)
}
