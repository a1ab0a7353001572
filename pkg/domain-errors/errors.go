// Package domainerrors carries coded errors across service and transport boundaries.
//
// Services return *Error values built with New or Wrap. Transports map the Code to a
// status; callers branch with HasCode. A chain may hold several coded layers, e.g. a
// malformed proof is reported as proof_rejected wrapping proof_malformed, and HasCode
// matches either.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, transport-agnostic error identifier.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"

	// Proof subsystem.
	CodeProofMalformed Code = "proof_malformed"
	CodeProofRejected  Code = "proof_rejected"
	CodeStaleTimestamp Code = "stale_timestamp"
	CodeOutOfResources Code = "out_of_resources"
	CodeWitnessInvalid Code = "witness_invalid"

	// Subscription ledger.
	CodeAlreadySubscribed   Code = "already_subscribed"
	CodeNotSubscribed       Code = "not_subscribed"
	CodeNotAuthorized       Code = "not_authorized"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeAlreadyCancelled    Code = "already_cancelled"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err. A nil err yields a plain coded error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any coded layer in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is reports whether err is a coded error at all.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
