package rsvp

import (
	"errors"
	"fmt"
	"time"
)

// ErrSerialization marks a storage conflict the coordinator may retry:
// a serialization failure, deadlock, or a lost race on the per-pair
// uniqueness constraint. The store maps its driver errors onto it.
var ErrSerialization = errors.New("storage serialization conflict")

type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindDeadlineExpired  Kind = "deadline_expired"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindTransient        Kind = "transient"
	KindUnknown          Kind = "unknown"
)

// Error is the typed rejection returned across the coordinator boundary.
// Business rejections (deadline, capacity) carry the detail the caller needs
// to render a specific message.
type Error struct {
	Kind    Kind
	Message string

	// SeatsAvailable is set on KindCapacityExceeded.
	SeatsAvailable int
	// Deadline is set on KindDeadlineExpired.
	Deadline *time.Time

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func NewValidation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewDeadlineExpired(deadline time.Time) *Error {
	return &Error{
		Kind:     KindDeadlineExpired,
		Message:  fmt.Sprintf("RSVPs closed on %s", deadline.Format(time.RFC3339)),
		Deadline: &deadline,
	}
}

func NewCapacityExceeded(available int) *Error {
	return &Error{
		Kind:           KindCapacityExceeded,
		Message:        fmt.Sprintf("only %d seat(s) remain", available),
		SeatsAvailable: available,
	}
}

func NewTransient(cause error) *Error {
	return &Error{Kind: KindTransient, Message: "storage conflict, retries exhausted", cause: cause}
}

func NewUnknown(cause error) *Error {
	return &Error{Kind: KindUnknown, Message: "internal failure", cause: cause}
}

// AsError unwraps a typed coordinator error from any error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
