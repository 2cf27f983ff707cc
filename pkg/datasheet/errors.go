package datasheet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Kind classifies an error so that callers (HTTP handlers, the CLI) can map it
// to a response without inspecting messages.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindCorrupt      Kind = "corrupt"
	KindInternal     Kind = "internal"
)

// Sentinel errors for errors.Is matching. Every *Error matches the sentinel of its Kind.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrCorrupt      = errors.New("stored data is corrupt")
	ErrInternal     = errors.New("internal error")
)

// Issue is a single field-level validation problem.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error is the typed error returned by datasheet and lifecycle operations.
type Error struct {
	Kind    Kind
	Op      string // Operation that failed, e.g. "verify"
	Message string
	Issues  []Issue
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Issues) > 0 {
		parts := make([]string, 0, len(e.Issues))
		for _, issue := range e.Issues {
			parts = append(parts, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's Kind.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

func sentinelFor(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindUnauthorized:
		return ErrUnauthorized
	case KindCorrupt:
		return ErrCorrupt
	default:
		return ErrInternal
	}
}

// KindOf returns the Kind of err. Untyped errors are KindInternal, except
// redis.Nil which means the record does not exist.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, redis.Nil) {
		return KindNotFound
	}
	return KindInternal
}

// NewValidationError builds a KindValidation error with optional field issues.
func NewValidationError(op, message string, issues ...Issue) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Issues: issues}
}

// NewNotFoundError builds a KindNotFound error.
func NewNotFoundError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError builds a KindConflict error.
func NewConflictError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewUnauthorizedError builds a KindUnauthorized error.
func NewUnauthorizedError(op, message string) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Message: message}
}

// NewCorruptError builds a KindCorrupt error wrapping the decode/validation failure.
func NewCorruptError(op, message string, err error) *Error {
	return &Error{Kind: KindCorrupt, Op: op, Message: message, Err: err}
}

// NewInternalError wraps an unexpected failure, typically from Redis.
func NewInternalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// IsNotFound checks if an error represents a missing record.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
