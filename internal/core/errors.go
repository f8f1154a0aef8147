package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers should react to it.
type Kind int

const (
	// KindNotFound means the requested key/object does not exist. Not retried.
	KindNotFound Kind = iota + 1
	// KindTransient means the failure is likely temporary (network, 5xx).
	// Callers may retry with backoff.
	KindTransient
	// KindFatal means retrying cannot help (auth, permission, bad config).
	KindFatal
	// KindBadInput means the caller supplied a malformed value. Not retried.
	KindBadInput
	// KindForbidden means authentication failed on a privileged operation.
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindBadInput:
		return "bad input"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error. Op names the failing operation for logs.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kind-tagged error from a format string.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the nearest *Error in err's chain.
// Errors without a kind report KindTransient: an unclassified failure must
// never be treated as authoritative absence or a permanent condition.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsNotFound reports whether err is classified as a missing key/object.
func IsNotFound(err error) bool { return kindIs(err, KindNotFound) }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsFatal reports whether err is permanent and must not be retried.
func IsFatal(err error) bool { return kindIs(err, KindFatal) }

// IsBadInput reports whether err came from malformed caller input.
func IsBadInput(err error) bool { return kindIs(err, KindBadInput) }

// IsForbidden reports whether err is an authentication failure.
func IsForbidden(err error) bool { return kindIs(err, KindForbidden) }

func kindIs(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
