package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Manifest schema errors (fatal at load time)
	ErrSchema         ErrorCode = "SCHEMA_INVALID"
	ErrSchemaParse    ErrorCode = "SCHEMA_PARSE"
	ErrCyclicTemplate ErrorCode = "CYCLIC_TEMPLATE"

	// Resolution errors
	ErrTemplateParamMissing ErrorCode = "TEMPLATE_PARAM_MISSING"
	ErrTemplateSyntax       ErrorCode = "TEMPLATE_SYNTAX"

	// Planning / validation errors
	ErrMissingRequiredArtifact ErrorCode = "MISSING_REQUIRED_ARTIFACT"
	ErrMissingRequiredFile     ErrorCode = "MISSING_REQUIRED_FILE"
	ErrDestinationCollision    ErrorCode = "DESTINATION_COLLISION"
	ErrChecksumMismatch        ErrorCode = "CHECKSUM_MISMATCH"

	// Execution errors
	ErrTransferFailed ErrorCode = "TRANSFER_FAILED"
	ErrTransferAbort  ErrorCode = "TRANSFER_ABORTED"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// FileSystem errors
	ErrFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess    ErrorCode = "FILE_ACCESS"
	ErrFileWrite     ErrorCode = "FILE_WRITE"
	ErrSymlinkCreate ErrorCode = "SYMLINK_CREATE"
	ErrDirCreate     ErrorCode = "DIR_CREATE"
)

// StagerError represents a structured error with code and details
type StagerError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *StagerError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *StagerError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *StagerError) Is(target error) bool {
	var targetErr *StagerError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new StagerError with the given code and message
func New(code ErrorCode, message string) *StagerError {
	return &StagerError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new StagerError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *StagerError {
	return &StagerError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a StagerError
func Wrap(err error, code ErrorCode, message string) *StagerError {
	if err == nil {
		return nil
	}
	return &StagerError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *StagerError {
	if err == nil {
		return nil
	}
	return &StagerError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *StagerError) WithDetail(key string, value interface{}) *StagerError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var stagerErr *StagerError
	if errors.As(err, &stagerErr) {
		return stagerErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a StagerError
func GetErrorCode(err error) ErrorCode {
	var stagerErr *StagerError
	if errors.As(err, &stagerErr) {
		return stagerErr.Code
	}
	return ErrUnknown
}
