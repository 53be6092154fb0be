// Package errkind defines the stable error taxonomy shared by every layer
// of the query compiler, the batch processor, and the delta tracker.
//
// Every fallible operation in this module returns a Go error; callers that
// need to turn that error into an HTTP response type-assert it to *Error
// (or use errors.As) and use its Status and Code.
package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies an Error by the HTTP status it maps to.
type Kind int

const (
	// BadRequest covers malformed query options, invalid filter grammar,
	// unknown field/nav references, invalid delta tokens, unsupported
	// batch methods, and oversized batches.
	BadRequest Kind = iota
	// NotFound covers unknown resources, missing entity ids, and unknown
	// navigations.
	NotFound
	// MethodNotAllowed covers unsupported methods on a route.
	MethodNotAllowed
	// InternalError covers connection failures, transaction rollbacks,
	// and any other unexpected failure.
	InternalError
)

// Status returns the HTTP status code associated with k.
func (k Kind) Status() int {
	switch k {
	case BadRequest:
		return 400
	case NotFound:
		return 404
	case MethodNotAllowed:
		return 405
	default:
		return 500
	}
}

// Code returns the stable numeric-string code carried in the error envelope.
func (k Kind) Code() string {
	switch k {
	case BadRequest:
		return "400"
	case NotFound:
		return "404"
	case MethodNotAllowed:
		return "405"
	default:
		return "500"
	}
}

// Error is the error type every package in this module raises. Message
// must always be safe to echo back to a client: no raw SQL, no secrets,
// no stack traces.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Status returns the HTTP status to report for e.
func (e *Error) Status() int { return e.Kind.Status() }

// Code returns the stable numeric-string code to report for e.
func (e *Error) Code() string { return e.Kind.Code() }

// New builds an *Error of the given kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind that wraps an underlying error.
// The underlying error's text is never included verbatim in Message; it is
// only reachable via errors.Unwrap, so callers must be careful never to
// echo Wrapped directly to a client.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// BadRequestf is a convenience constructor for the common BadRequest case.
func BadRequestf(format string, args ...any) *Error { return New(BadRequest, format, args...) }

// NotFoundf is a convenience constructor for the common NotFound case.
func NotFoundf(format string, args ...any) *Error { return New(NotFound, format, args...) }

// MethodNotAllowedf is a convenience constructor for the MethodNotAllowed case.
func MethodNotAllowedf(format string, args ...any) *Error { return New(MethodNotAllowed, format, args...) }

// Internalf is a convenience constructor for the InternalError case.
func Internalf(format string, args ...any) *Error { return New(InternalError, format, args...) }

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is an *Error, else InternalError.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return InternalError
}
