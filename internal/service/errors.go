package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindInvalidDate           Kind = "INVALID_DATE"
	KindNotBusinessDay        Kind = "NOT_BUSINESS_DAY"
	KindTooSoon               Kind = "TOO_SOON"
	KindSlaExceeded           Kind = "SLA_EXCEEDED"
	KindSlaAlreadyExpired     Kind = "SLA_ALREADY_EXPIRED"
	KindCapacityExceeded      Kind = "CAPACITY_EXCEEDED"
	KindNoAvailableSlot       Kind = "NO_AVAILABLE_SLOT"
	KindMissingClientID       Kind = "MISSING_CLIENT_ID"
	KindMissingOrderSelection Kind = "MISSING_ORDER_SELECTION"
	KindTransportTimeout      Kind = "TRANSPORT_TIMEOUT"
)

// Retryable reports whether the failure came from an external call and the
// same turn may succeed if repeated.
func (k Kind) Retryable() bool {
	return k == KindTransportTimeout
}

// Error is a scheduling failure. Deadline is set for SlaExceeded,
// SlaAlreadyExpired and NoAvailableSlot.
type Error struct {
	Kind     Kind
	Op       string
	Deadline time.Time
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if !e.Deadline.IsZero() {
		msg += " (deadline " + e.Deadline.Format(dateLayout) + ")"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind) *Error {
	return &Error{Kind: kind}
}

func deadlineError(kind Kind, deadline time.Time) *Error {
	return &Error{Kind: kind, Deadline: deadline}
}

// transportError wraps any ticketing failure as a retryable TransportTimeout.
func transportError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("ticketing call timed out: %w", err)
	}
	return &Error{Kind: KindTransportTimeout, Op: op, Err: err}
}

// KindOf extracts the scheduling kind from err, or "" when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// DeadlineOf returns the deadline carried by err, if any.
func DeadlineOf(err error) (time.Time, bool) {
	var e *Error
	if errors.As(err, &e) && !e.Deadline.IsZero() {
		return e.Deadline, true
	}
	return time.Time{}, false
}
