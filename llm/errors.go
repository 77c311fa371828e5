package llm

import (
	"errors"
	"fmt"
)

// Error categories shared by the pipelines and their collaborators
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrNotFound          = errors.New("resource not found")
	ErrNotExtracted      = errors.New("document not extracted")
	ErrBackend           = errors.New("reasoning backend failure")
	ErrMalformedResponse = errors.New("malformed backend response")
	ErrUnsupportedFile   = errors.New("unsupported file type")
)

// AppError carries a stable code and a human message around a cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates an AppError
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// InvalidConfig reports a configuration error that must fail fast
func InvalidConfig(format string, args ...interface{}) error {
	return NewAppError("CONFIG_ERROR", fmt.Sprintf(format, args...), ErrInvalidConfig)
}

// Precondition reports a pipeline entry check that did not hold
func Precondition(message string, cause error) error {
	return NewAppError("PRECONDITION_FAILED", message, cause)
}

// Malformed reports a backend reply that did not match the expected shape
func Malformed(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, what, err)
	}
	return fmt.Errorf("%w: %s", ErrMalformedResponse, what)
}
