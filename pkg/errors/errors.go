// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed errors for the rolecast decision engines.
// Every rejected call is reported through a RolecastError carrying a code that
// callers branch on with HasCode.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies rolecast errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeConfigMismatch indicates persisted bandit state was written for a
	// different arm count. It is recovered locally by starting fresh.
	CodeConfigMismatch ErrorCode = "CONFIG_MISMATCH"

	// CodeOutOfRange indicates an arm index outside [0, arm_count).
	CodeOutOfRange ErrorCode = "OUT_OF_RANGE"

	// CodeInvalidEvidence indicates an unknown variable or an undeclared state.
	CodeInvalidEvidence ErrorCode = "INVALID_EVIDENCE"

	// CodePersistenceIO indicates the state store could not be read or written.
	CodePersistenceIO ErrorCode = "PERSISTENCE_IO"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// RolecastError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type RolecastError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *RolecastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *RolecastError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *RolecastError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
	})
}

// New creates a new RolecastError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *RolecastError {
	return &RolecastError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *RolecastError) WithContext(key string, value interface{}) *RolecastError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *RolecastError) WithAttribute(key, value string) *RolecastError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *RolecastError) WithRecoverable(recoverable bool) *RolecastError {
	e.Recoverable = recoverable
	return e
}

// AsRolecastError finds the first RolecastError in err's chain.
// Errors of any other kind are wrapped as internal errors.
func AsRolecastError(err error) *RolecastError {
	if err == nil {
		return nil
	}
	var re *RolecastError
	if stderrors.As(err, &re) {
		return re
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err's chain holds a RolecastError with code.
func HasCode(err error, code ErrorCode) bool {
	var re *RolecastError
	if !stderrors.As(err, &re) {
		return false
	}
	return re.Code == code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *RolecastError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeInvalidInput, CodeOutOfRange, CodeInvalidEvidence:
		return 400
	case CodeConfigMismatch:
		return 409
	default:
		return 500
	}
}
