package probe

import (
	"errors"
	"fmt"
)

// Kind classifies a failed health check.
type Kind string

const (
	// KindTimeout means the probe did not settle within its deadline.
	KindTimeout Kind = "timeout"
	// KindWrite means the write stage failed.
	KindWrite Kind = "write"
	// KindVerify means the read-back or delete stage failed.
	KindVerify Kind = "verify"
)

var (
	// ErrHealthCheckFailed matches every health check failure.
	ErrHealthCheckFailed = errors.New("redis health check failed")
	// ErrTimedOut matches KindTimeout failures.
	ErrTimedOut = fmt.Errorf("%w: timed out", ErrHealthCheckFailed)
	// ErrWriteFailed matches KindWrite failures.
	ErrWriteFailed = fmt.Errorf("%w: write error", ErrHealthCheckFailed)
	// ErrVerifyFailed matches KindVerify failures.
	ErrVerifyFailed = fmt.Errorf("%w: verify error", ErrHealthCheckFailed)
)

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimedOut
	case KindWrite:
		return ErrWriteFailed
	case KindVerify:
		return ErrVerifyFailed
	default:
		return ErrHealthCheckFailed
	}
}

// Error is returned by a failed health check. Context is a snapshot taken at
// the moment of failure; Cause is set when the store call itself failed.
type Error struct {
	Kind    Kind
	Message string
	Context Context
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("redis health check %s error: %s (stage=%s)", e.Kind, e.Message, e.Context.Stage)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// AsError returns the *Error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
