// Package ddbserrors defines the error taxonomy shared by the control
// node and the backend node.
package ddbserrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the fixed set of error categories the system can
// produce. It is carried over the wire so a remote caller can branch
// on the category without parsing the message.
type Kind string

const (
	ConfigError          Kind = "ConfigError"
	Initialized          Kind = "Initialized"
	Uninitialize         Kind = "Uninitialize"
	RpcInvalidArg        Kind = "RpcInvalidArg"
	InvalidArg           Kind = "InvalidArg"
	ServerNotAlive       Kind = "ServerNotAlive"
	InvalidUri           Kind = "InvalidUri"
	TransportConnect     Kind = "TransportConnect"
	RpcStatus            Kind = "RpcStatus"
	SqlParse             Kind = "SqlParse"
	UnsupportedSql       Kind = "UnsupportedSql"
	DbTypeParse          Kind = "DbTypeParse"
	DeserializationError Kind = "DeserializationError"
	DbInternal           Kind = "DbInternal"
	EnvVar               Kind = "EnvVar"
	ConfigParse          Kind = "ConfigParse"
	Io                   Kind = "Io"
)

// Error is the concrete error type returned across the system. It
// pairs a Kind with a human-readable message and an optional wrapped
// cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same Kind, so
// errors.Is(err, New(SqlParse, "")) matches any SqlParse error
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// OfKind reports whether err is a *Error of the given kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning "" if err is not a
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
