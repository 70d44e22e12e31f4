package gateway

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy every skill and endpoint adapter
// shares. Endpoint adapters translate a Kind into wire-specific codes
// (spec.md section 7); the skill layer never invents new kinds.
type Kind string

const (
	KindInvalidArgument   Kind = "InvalidArgument"
	KindNotFound          Kind = "NotFound"
	KindInvalidTransition Kind = "InvalidTransition"
	KindUnauthenticated   Kind = "Unauthenticated"
	KindPaymentRequired   Kind = "PaymentRequired"
	KindRateLimited       Kind = "RateLimited"
	KindUpstreamTimeout   Kind = "UpstreamTimeout"
	KindUpstreamFailure   Kind = "UpstreamFailure"
	KindNotRoutable       Kind = "NotRoutable"
	KindInternal          Kind = "Internal"
)

// Error is the typed error every skill and store operation returns.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is populated for KindRateLimited.
	RetryAfter int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, gateway.Err(kind)) match by kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// NewError builds a typed Error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed Error that also carries an upstream cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// RateLimitedErr builds the KindRateLimited error carrying a retry hint.
func RateLimitedErr(retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded", RetryAfter: retryAfterSeconds}
}

// Err is a sentinel comparable with errors.Is for a bare kind check,
// e.g. errors.Is(err, gateway.Err(gateway.KindNotFound)).
func Err(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err
// is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
