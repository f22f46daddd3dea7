// Package errs provides the unified error type used across all of sqlgate.
//
// Every subsystem (database, session, filestore, …) wraps its native errors
// into *errs.Error before returning them to callers. Callers use the Is*
// predicates to handle errors without importing driver-specific packages.
// Translation into the two wire error shapes happens only in the command
// package.
//
// Usage:
//
//	// In a driver, keep the provider's text as the message:
//	return errs.Wrap(errs.ErrKindQueryFailed, mssqlErr.Message, err)
//
//	// In a caller, check the error kind:
//	if errs.IsNoActiveConnection(err) {
//	    ...
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown                 ErrKind = iota
	ErrKindInvalidConnectionString         // malformed connection string override
	ErrKindTransport                       // socket-level failure reaching the server
	ErrKindHandshake                       // login / protocol negotiation failure
	ErrKindAlreadyConnected                // connect on a connected session
	ErrKindNoActiveConnection              // operation needs a connected session
	ErrKindMissingQuery                    // empty statement text
	ErrKindQueryFailed                     // execution-time failure from the engine
	ErrKindNormalization                   // a cell value could not be converted
	ErrKindTimeout                         // context deadline / cancellation
	ErrKindInvalidInput                    // bad arguments from the caller
	ErrKindNotFound                        // no object, no bucket
	ErrKindPermissionDenied                // access denied
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidConnectionString:
		return "invalid_connection_string"
	case ErrKindTransport:
		return "transport"
	case ErrKindHandshake:
		return "handshake"
	case ErrKindAlreadyConnected:
		return "already_connected"
	case ErrKindNoActiveConnection:
		return "no_active_connection"
	case ErrKindMissingQuery:
		return "missing_query"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindNormalization:
		return "normalization"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all sqlgate subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Verbatim wraps cause keeping its own text as the message. Used for
// provider errors that are shown to the user unchanged.
func Verbatim(kind ErrKind, cause error) *Error {
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// Classify returns err unchanged when it already is an *Error, otherwise it
// wraps err verbatim with kind.
func Classify(kind ErrKind, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Verbatim(kind, err)
}

// --- Inspection ---

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// Message returns the display text for err: the Message of the first
// *Error in the chain, or err.Error() for foreign errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// --- Predicates ---

// IsInvalidConnectionString reports whether err is a malformed override string.
func IsInvalidConnectionString(err error) bool {
	return KindOf(err) == ErrKindInvalidConnectionString
}

// IsTransport reports whether err is a socket-level connect failure.
func IsTransport(err error) bool {
	return KindOf(err) == ErrKindTransport
}

// IsHandshake reports whether err is an authentication or negotiation failure.
func IsHandshake(err error) bool {
	return KindOf(err) == ErrKindHandshake
}

// IsAlreadyConnected reports whether err rejected a connect on a live session.
func IsAlreadyConnected(err error) bool {
	return KindOf(err) == ErrKindAlreadyConnected
}

// IsNoActiveConnection reports whether err was caused by a missing session.
func IsNoActiveConnection(err error) bool {
	return KindOf(err) == ErrKindNoActiveConnection
}

// IsMissingQuery reports whether err rejected an empty statement.
func IsMissingQuery(err error) bool {
	return KindOf(err) == ErrKindMissingQuery
}

// IsQueryFailed reports whether err is an execution failure from the engine.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsNormalization reports whether err came from converting a cell value.
func IsNormalization(err error) bool {
	return KindOf(err) == ErrKindNormalization
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsNotFound reports whether err represents a missing object or bucket.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}
