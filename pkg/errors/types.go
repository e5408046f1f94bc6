// Package errors defines the coded errors shared by every overwatch
// package. Import it as owerr.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Lookup and allocation errors
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE"

	// Lifecycle errors
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodePolicyBlocking    ErrorCode = "POLICY_BLOCKING"

	// Approval errors
	ErrCodeApprovalExpired  ErrorCode = "APPROVAL_EXPIRED"
	ErrCodeApprovalResolved ErrorCode = "APPROVAL_RESOLVED"

	// Storage errors
	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"
	ErrCodeIntegrity    ErrorCode = "INTEGRITY"

	// Interaction layer errors
	ErrCodeBusPublish ErrorCode = "BUS_PUBLISH"

	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error is the structured error every overwatch package returns. Code is
// the stable contract callers branch on; Message and Context are for
// operators.
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Retryable   bool
	Remediation []string
}

// New returns an error with code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. Wrap(nil, ...) is nil.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Underlying = err
	return e
}

// NotFound reports a lookup miss for an entity of the given kind.
func NotFound(kind, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %s not found", kind, id).
		WithContext("kind", kind).
		WithContext("id", id)
}

// InvalidTransition reports a state machine move the lifecycle table does
// not allow.
func InvalidTransition(entity, id, from, to string) *Error {
	return Newf(ErrCodeInvalidTransition, "%s %s cannot move from %s to %s", entity, id, from, to).
		WithContext("id", id).
		WithContext("from", from).
		WithContext("to", to)
}

// WithContext records a key/value shown in Error().
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks whether repeating the call may succeed.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithRemediation replaces the operator hints. No arguments keeps the
// current ones.
func (e *Error) WithRemediation(tips ...string) *Error {
	if len(tips) > 0 {
		e.Remediation = append([]string(nil), tips...)
	}
	return e
}

// Error renders "[CODE] message {k: v, ...}: cause" with context keys sorted.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", k, e.Context[k])
		}
		sb.WriteString("}")
	}
	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches a bare Code(...) target with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Code == e.Code
}

// Code returns a bare error carrying only a code, for errors.Is comparisons.
//
//	if errors.Is(err, owerr.Code(owerr.ErrCodeNotFound)) { ... }
func Code(code ErrorCode) *Error {
	return &Error{Code: code}
}

func find(err error) (*Error, bool) {
	var structured *Error
	if err == nil || !stderrors.As(err, &structured) {
		return nil, false
	}
	return structured, true
}

// IsCode reports whether err, or anything it wraps, carries code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := find(err)
	return ok && e.Code == code
}

// GetCode returns err's code, INTERNAL for unstructured errors and "" for
// nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if e, ok := find(err); ok {
		return e.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err was marked retryable.
func IsRetryable(err error) bool {
	e, ok := find(err)
	return ok && e.Retryable
}

// Remediation returns the operator hints carried by err, if any.
func Remediation(err error) []string {
	if e, ok := find(err); ok {
		return e.Remediation
	}
	return nil
}
