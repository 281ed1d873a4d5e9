package domain

import (
	"errors"
	"fmt"
)

// Kind categorizes a migration condition. The empty Kind means success.
type Kind string

const (
	KindSourceUnavailable   Kind = "SOURCE_UNAVAILABLE"
	KindMalformedConfig     Kind = "MALFORMED_CONFIG"
	KindTransferUnavailable Kind = "TRANSFER_UNAVAILABLE"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindThrottled           Kind = "THROTTLED"
	KindAlreadyMember       Kind = "ALREADY_MEMBER"
	KindCorrelationMiss     Kind = "CORRELATION_MISS"
	KindDeliveryTooLarge    Kind = "DELIVERY_TOO_LARGE"
	KindOperationFailed     Kind = "OPERATION_FAILED"
	KindAlreadyLeft         Kind = "ALREADY_LEFT"
	KindSkipped             Kind = "SKIPPED"
)

// Fatal reports whether the kind aborts the whole run.
func (k Kind) Fatal() bool {
	switch k {
	case KindSourceUnavailable, KindTransferUnavailable, KindUnauthorized:
		return true
	default:
		return false
	}
}

// Error carries a Kind along with the operation and room it occurred in.
type Error struct {
	Kind Kind
	Op   string
	Room string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Room != "" {
		msg += fmt.Sprintf(" (room=%s)", e.Room)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error wrapping a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns err as an *Error of the given kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or the empty Kind.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsFatal returns true if err must abort the run.
// Uses errors.As to handle wrapped errors.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}

// Outcome is the result of one recoverable operation.
type Outcome struct {
	Kind   Kind
	Detail string
}

// OK reports whether the operation fully succeeded.
func (o Outcome) OK() bool {
	return o.Kind == ""
}

// Success is the zero Outcome.
var Success = Outcome{}

// Recovered builds a non-success outcome.
func Recovered(kind Kind, detail string) Outcome {
	return Outcome{Kind: kind, Detail: detail}
}
