// Package errors provides the structured error codes used across docqa.
//
// Every error that crosses a package boundary towards the HTTP surface is an
// *Errno: a globally unique code plus the HTTP and gRPC status it maps to and
// an English/Chinese message pair.
//
// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): Service code
//	BB  (00-99): Category code
//	CCC (000-999): Sequence number within the category
//
// Usage:
//
//	// Returning a predefined error
//	return errors.ErrEmptyInput.WithMessage("question must not be blank")
//
//	// Wrapping an underlying error
//	return errors.ErrExtraction.WithCause(err)
//
//	// Matching, through any number of %w wrappers
//	if errors.Is(err, errors.ErrIndexNotFound) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Errno represents a structured error with code and messages.
type Errno struct {
	// Code is the unique error code
	Code int `json:"code"`

	// HTTP is the HTTP status code to return
	HTTP int `json:"-"`

	// GRPCCode is the gRPC status code
	GRPCCode codes.Code `json:"-"`

	// MessageEN is the English error message
	MessageEN string `json:"message"`

	// MessageZH is the Chinese error message
	MessageZH string `json:"message_zh,omitempty"`

	cause error
}

// New creates a new Errno with the given parameters.
func New(code int, httpStatus int, grpcCode codes.Code, messageEN, messageZH string) *Errno {
	return &Errno{
		Code:      code,
		HTTP:      httpStatus,
		GRPCCode:  grpcCode,
		MessageEN: messageEN,
		MessageZH: messageZH,
	}
}

// Error implements the error interface.
func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
}

// Unwrap returns the underlying cause.
func (e *Errno) Unwrap() error {
	return e.cause
}

// Cause returns the underlying cause, or nil.
func (e *Errno) Cause() error {
	return e.cause
}

func (e *Errno) clone() *Errno {
	c := *e
	return &c
}

// WithCause returns a copy of e wrapping cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := e.clone()
	c.cause = cause
	return c
}

// WithMessage returns a copy of e with a custom English message.
func (e *Errno) WithMessage(msg string) *Errno {
	c := e.clone()
	c.MessageEN = msg
	return c
}

// WithMessagef returns a copy of e with a formatted English message.
func (e *Errno) WithMessagef(format string, args ...interface{}) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Message returns the message based on language.
func (e *Errno) Message(lang string) string {
	if lang == "zh" || lang == "zh-CN" || lang == "zh_CN" {
		if e.MessageZH != "" {
			return e.MessageZH
		}
	}
	return e.MessageEN
}

// HTTPStatus returns the HTTP status code.
func (e *Errno) HTTPStatus() int {
	if e.HTTP != 0 {
		return e.HTTP
	}
	return http.StatusInternalServerError
}

// GRPCStatus returns the gRPC status code.
func (e *Errno) GRPCStatus() codes.Code {
	if e.GRPCCode != codes.OK {
		return e.GRPCCode
	}
	return codes.Internal
}

// Is reports whether target is an Errno with the same code.
func (e *Errno) Is(target error) bool {
	if t, ok := target.(*Errno); ok {
		return e.Code == t.Code
	}
	return false
}

// Format implements fmt.Formatter.
func (e *Errno) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "errno %d [HTTP %d, gRPC %s]: %s", e.Code, e.HTTP, e.GRPCCode.String(), e.MessageEN)
			if e.MessageZH != "" {
				_, _ = fmt.Fprintf(s, " (%s)", e.MessageZH)
			}
			if e.cause != nil {
				_, _ = fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
			}
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// Is is errors.Is from the standard library, re-exported so callers do not
// need two errors imports.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
