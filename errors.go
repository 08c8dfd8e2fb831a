package arianpay

import (
	"context"
	"errors"
	"fmt"
)

// The failure taxonomy is TransportError and GatewayError here plus
// auth.Error for the authentication leg, which lives with the token cache in
// package auth.

// ErrInvalidOperator is returned by the charge operations when the operator
// is not one of MCI, MTN or RTL. Validation happens before any network call.
var ErrInvalidOperator = fmt.Errorf("unknown mobile operator")

// TransportError wraps a network-level failure: connection error, timeout,
// caller cancellation, or a response body that could not be parsed.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// GatewayError is returned when the gateway answered with a parsable envelope
// whose resultCode is non-zero. Code and Message come from the envelope;
// Envelope keeps any partial data for callers that branch on gateway codes.
type GatewayError struct {
	Operation string
	Code      int
	Message   string
	Envelope  *Envelope
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: gateway result %d: %s", e.Operation, e.Code, e.Message)
}

// IsTimeout reports whether err was caused by a deadline expiring, either the
// client's own 15 second cap or a tighter caller deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// IsCanceled reports whether err was caused by the caller canceling the
// context of an in-flight call.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
