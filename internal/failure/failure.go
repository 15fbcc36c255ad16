// Package failure defines the error taxonomy shared by every automation
// component. Components return *Error values; the interpreter turns them
// into execution log statuses.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an automation failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidationRejected
	KindTimeout
	KindSession
	KindMalformedPlan
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidationRejected:
		return "ValidationRejected"
	case KindTimeout:
		return "Timeout"
	case KindSession:
		return "SessionFailure"
	case KindMalformedPlan:
		return "MalformedPlan"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidationRejected = &Error{Kind: KindValidationRejected}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrSession            = &Error{Kind: KindSession}
	ErrMalformedPlan      = &Error{Kind: KindMalformedPlan}
)

// Error is a classified failure raised by a component operation.
type Error struct {
	Kind   Kind
	Op     string // component operation, e.g. "navigator.walk"
	Detail string // human readable detail shown in the execution log
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Detail == "" && t.Err == nil
}

func newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// NotFound reports that no element matched a hint.
func NotFound(op, format string, args ...interface{}) *Error {
	return newf(KindNotFound, op, format, args...)
}

// ValidationRejected reports that the target system refused submitted data.
// Detail carries the captured diagnostic text.
func ValidationRejected(op, diagnostic string) *Error {
	return &Error{Kind: KindValidationRejected, Op: op, Detail: diagnostic}
}

// Timeout reports that an expected state transition did not happen in time.
func Timeout(op, format string, args ...interface{}) *Error {
	return newf(KindTimeout, op, format, args...)
}

// Session wraps an error from the browser session boundary.
func Session(op string, err error) *Error {
	return &Error{Kind: KindSession, Op: op, Err: err}
}

// MalformedPlan reports a plan document that failed structural parsing.
func MalformedPlan(op string, err error) *Error {
	return &Error{Kind: KindMalformedPlan, Op: op, Err: err}
}

// KindOf classifies err. Context cancellation is a session failure since
// the plan can no longer drive the browser.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindSession
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// DetailOf returns the log detail for err: the Detail of the outermost
// *Error when present, otherwise err.Error().
func DetailOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Detail != "" {
		return fe.Detail
	}
	return err.Error()
}
