// Package apierrors defines the closed set of error kinds the gateway
// surfaces to clients, with a Kind/Message/Cause shape that keeps the
// wrapped internal error out of the client-facing response.
package apierrors

import (
	"errors"
	"net/http"
)

// Kind identifies one of the error categories from the gateway's error
// handling design. Kinds are intentionally coarse: the client never learns
// more than this.
type Kind string

const (
	KindBadRequest             Kind = "bad_request"
	KindUnknownSession         Kind = "unknown_session"
	KindBadCiphertext          Kind = "bad_ciphertext"
	KindInvalidGuest           Kind = "invalid_guest"
	KindResourceExceededMemory Kind = "resource_exceeded_memory"
	KindResourceExceededFuel   Kind = "resource_exceeded_fuel"
	KindResourceExceededTime   Kind = "resource_exceeded_timeout"
	KindGuestTrap              Kind = "guest_trap"
	KindAttestationUnavailable Kind = "attestation_unavailable"
	KindPaymentRequired        Kind = "payment_required"
	KindInternal               Kind = "internal"
)

// httpStatus maps each kind to the HTTP status code the transport layer
// should respond with.
var httpStatus = map[Kind]int{
	KindBadRequest:             http.StatusBadRequest,
	KindUnknownSession:         http.StatusUnauthorized,
	KindBadCiphertext:          http.StatusBadRequest,
	KindInvalidGuest:           http.StatusBadRequest,
	KindResourceExceededMemory: http.StatusUnprocessableEntity,
	KindResourceExceededFuel:   http.StatusUnprocessableEntity,
	KindResourceExceededTime:   http.StatusUnprocessableEntity,
	KindGuestTrap:              http.StatusUnprocessableEntity,
	KindAttestationUnavailable: http.StatusInternalServerError,
	KindPaymentRequired:        http.StatusPaymentRequired,
	KindInternal:               http.StatusInternalServerError,
}

// Error is a gateway error carrying a Kind, a client-safe message, and an
// optional internal cause that is never serialized to the client.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the HTTP status code for this error's kind.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind, keeping cause internal (it is
// logged, never returned to the client).
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts a *Error from err, if any exists in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, otherwise
// KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
