// Package errors defines the structured errors raised by the compiler, the
// watcher and the command line.
//
// Every failure surfaced to the host is an *Error carrying a Type from the
// taxonomy below and a stable Code. Callers branch on the Type with the Is*
// predicates; the Code is meant for logs and tests.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeReference  ErrorType = "reference"
	ErrorTypeCycle      ErrorType = "cycle"
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeValidation ErrorType = "validation"
)

// Common error codes.
const (
	ErrCodeManifestNotConfigured = "ERR_MANIFEST_NOT_CONFIGURED"
	ErrCodeConfigInvalid         = "ERR_CONFIG_INVALID"
	ErrCodeMissingManifestEntry  = "ERR_MISSING_MANIFEST_ENTRY"
	ErrCodeCycleDetected         = "ERR_CYCLE_DETECTED"
	ErrCodeTemplateSyntax        = "ERR_TEMPLATE_SYNTAX"
	ErrCodeTemplateEval          = "ERR_TEMPLATE_EVAL"
	ErrCodeReadFailed            = "ERR_READ_FAILED"
	ErrCodeWriteFailed           = "ERR_WRITE_FAILED"
	ErrCodeInvalidEntry          = "ERR_INVALID_ENTRY"
	ErrCodeUnknownNode           = "ERR_UNKNOWN_NODE"
)

// Error is a structured error type with context.
type Error struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *Error) WithLocation(filePath string, line, column int) *Error {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *Error {
	return &Error{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewReferenceError creates an unresolvable reference error.
func NewReferenceError(code, message string) *Error {
	return &Error{Type: ErrorTypeReference, Code: code, Message: message}
}

// NewCycleError creates a dependency cycle error.
func NewCycleError(code, message string) *Error {
	return &Error{Type: ErrorTypeCycle, Code: code, Message: message}
}

// NewTemplateError creates a template parse or evaluation error.
func NewTemplateError(code, message string, cause error) *Error {
	return &Error{Type: ErrorTypeTemplate, Code: code, Message: message, Cause: cause}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *Error {
	return &Error{Type: ErrorTypeValidation, Code: code, Message: message}
}

// Wrap wraps an error with additional context. Location and context of a
// wrapped *Error are carried over.
func Wrap(err error, errType ErrorType, code, message string) *Error {
	if err == nil {
		return nil
	}

	wrapped := &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}

	var e *Error
	if errors.As(err, &e) {
		wrapped.Context = e.Context
		wrapped.FilePath = e.FilePath
		wrapped.Line = e.Line
		wrapped.Column = e.Column
	}

	return wrapped
}

func isType(err error, errType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}

	return false
}

// IsConfig checks if an error is a configuration error.
func IsConfig(err error) bool { return isType(err, ErrorTypeConfig) }

// IsReference checks if an error is an unresolvable reference error.
func IsReference(err error) bool { return isType(err, ErrorTypeReference) }

// IsCycle checks if an error reports a dependency cycle.
func IsCycle(err error) bool { return isType(err, ErrorTypeCycle) }

// IsTemplate checks if an error is a template error.
func IsTemplate(err error) bool { return isType(err, ErrorTypeTemplate) }

// Helper functions for common errors

// ErrManifestNotConfigured is raised before any compilation when no manifest
// path is available.
func ErrManifestNotConfigured() *Error {
	return NewConfigError(
		ErrCodeManifestNotConfigured,
		"[mixpaths]: expected a manifest file to be generated.",
	)
}

// ErrMissingManifestEntry reports a reference to a public id absent from the
// manifest. The message quotes the id verbatim, even when empty.
func ErrMissingManifestEntry(publicID string) *Error {
	return NewReferenceError(
		ErrCodeMissingManifestEntry,
		fmt.Sprintf("Unable to locate Mix file: '%s'.", publicID),
	).WithContext("public_id", publicID)
}

// ErrCycleDetected reports the nodes of the strongly connected components
// that prevent a topological order. Members of one component are listed as
// a set, components are separated by "; ".
func ErrCycleDetected(cycles [][]string) *Error {
	described := make([]string, 0, len(cycles))
	for _, cycle := range cycles {
		described = append(described, "{"+strings.Join(cycle, ", ")+"}")
	}

	return NewCycleError(
		ErrCodeCycleDetected,
		"dependency cycle detected: "+strings.Join(described, "; "),
	).WithContext("cycles", cycles)
}

// ErrUnknownNode reports a lookup of a public id that is not a graph node.
func ErrUnknownNode(publicID string) *Error {
	return NewValidationError(ErrCodeUnknownNode, fmt.Sprintf("node does not exist: '%s'", publicID))
}
