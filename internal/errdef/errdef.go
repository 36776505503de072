// Package errdef defines the stable error codes used across cmdr.
package errdef

import (
	"errors"
	"fmt"
)

// Code is a stable error code string.
type Code string

const (
	EUsage      Code = "E_USAGE"
	EConfig     Code = "E_CONFIG"
	EValidation Code = "E_VALIDATION"
	EBackup     Code = "E_BACKUP"
	EWrite      Code = "E_WRITE"
	EProvider   Code = "E_PROVIDER"
	EGit        Code = "E_GIT"
	EInternal   Code = "E_INTERNAL"
)

// Error carries a code, a message, the offending path when one exists,
// and an optional cause.
type Error struct {
	Code  Code
	Msg   string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, a ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, a...)}
}

// NewPath creates an Error tied to a specific path.
func NewPath(code Code, path, msg string) error {
	return &Error{Code: code, Msg: msg, Path: path}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(code Code, msg string, err error) error {
	return &Error{Code: code, Msg: msg, Cause: err}
}

// WrapPath creates an Error tied to a path, wrapping an underlying cause.
func WrapPath(code Code, path, msg string, err error) error {
	return &Error{Code: code, Msg: msg, Path: path, Cause: err}
}

// GetCode extracts the code from an error, or empty string when err is not
// (and does not wrap) an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ExitCode maps an error to a process exit code: 0 for nil, 2 for usage
// errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}
