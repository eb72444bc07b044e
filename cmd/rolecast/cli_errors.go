// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the rolecast CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jllopis/rolecast/pkg/errors"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// CLIError wraps RolecastError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.RolecastError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(re *errors.RolecastError, hint string) *CLIError {
	return &CLIError{
		RolecastError: re,
		Hint:          hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.RolecastError == nil {
		return "unknown error"
	}

	msg := e.RolecastError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// PrintError writes the error to w as text or a JSON object.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if asJSON {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]string{
				"code":    string(e.Code),
				"message": msg,
				"hint":    e.Hint,
			},
		})
		fmt.Fprintln(w, string(payload))
		return
	}

	fmt.Fprintf(w, "Error: %s [%s]: %s\n", FormatErrorCode(e.Code), e.Code, msg)
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewUsageError reports a malformed command line.
func NewUsageError(usage string) *CLIError {
	re := errors.New(errors.CodeInvalidInput, "usage: "+usage, nil).
		WithRecoverable(false)
	return NewCLIError(re, "run 'rolecast help' for usage information")
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, value, reason string) *CLIError {
	re := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid %s %q: %s", arg, value, reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason).
		WithRecoverable(false)
	return NewCLIError(re, "run 'rolecast help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configArgs []string) *CLIError {
	re := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithRecoverable(false)

	hint := "check your configuration file syntax and --set values"
	if path := configPath(configArgs); path != "" {
		re = re.WithContext("config_path", path)
		hint = fmt.Sprintf("check %s for syntax errors", path)
	}
	return NewCLIError(re, hint)
}

// WrapDomainError attaches a hint matching the error code.
func WrapDomainError(err error) *CLIError {
	if ce, ok := err.(*CLIError); ok {
		return ce
	}
	re := errors.AsRolecastError(err)
	return NewCLIError(re, hintFor(re.Code))
}

func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeOutOfRange:
		return "arm indexes are zero-based and must be below arm_count"
	case errors.CodeInvalidEvidence:
		return "evidence values are \"low\" or \"high\""
	case errors.CodePersistenceIO:
		return "check bandit.state_path and its directory permissions"
	default:
		return ""
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if ce, ok := err.(*CLIError); ok {
		err = ce.RolecastError
	}
	switch {
	case errors.HasCode(err, errors.CodeInvalidInput),
		errors.HasCode(err, errors.CodeOutOfRange),
		errors.HasCode(err, errors.CodeInvalidEvidence):
		return exitUsage
	default:
		return exitFailure
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeOutOfRange:
		return "Out Of Range"
	case errors.CodeInvalidEvidence:
		return "Invalid Evidence"
	case errors.CodePersistenceIO:
		return "Persistence Error"
	case errors.CodeConfigMismatch:
		return "Configuration Mismatch"
	default:
		return string(code)
	}
}
