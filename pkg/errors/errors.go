// Package errors defines the closed error taxonomy used across the
// pipeline and store (spec §7). Every fault raised by this module is an
// *Error carrying one of the Kind values below, so callers can branch
// on errors.As without string-matching messages.
package errors

import "fmt"

// Kind is one of the error kinds spec.md §7 enumerates.
type Kind string

const (
	KindConfigError          Kind = "ConfigError"
	KindStageBusy            Kind = "StageBusyError"
	KindStoreFormat          Kind = "StoreFormatError"
	KindVersionNotSupported  Kind = "VersionNotSupported"
	KindFileTooLarge         Kind = "FileTooLarge"
	KindMigrationRequired    Kind = "MigrationRequired"
	KindWriteFailed          Kind = "WriteFailed"
	KindReadFailed           Kind = "ReadFailed"
	KindTransport            Kind = "TransportError"
	KindCancelled            Kind = "Cancelled"
)

// Error is the single concrete error type this module raises. Message
// is a human-readable description; Identifier is the offending name
// where one exists (a stage name, setting name, file path, or record
// id); Cause is the wrapped lower-level error, if any.
type Error struct {
	Kind       Kind
	Message    string
	Identifier string
	Cause      error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithIdentifier returns a copy of e carrying the given identifier.
func (e *Error) WithIdentifier(id string) *Error {
	cp := *e
	cp.Identifier = id
	return &cp
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Identifier != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Identifier)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, KindX) work by comparing Kind when the target
// is itself a bare *Error used as a sentinel with only Kind set.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Convenience constructors, one per kind, mirroring the taxonomy.

func ConfigError(message string) *Error         { return New(KindConfigError, message) }
func StageBusy(message string) *Error           { return New(KindStageBusy, message) }
func StoreFormat(message string) *Error         { return New(KindStoreFormat, message) }
func VersionNotSupported(message string) *Error { return New(KindVersionNotSupported, message) }
func FileTooLarge(message string) *Error        { return New(KindFileTooLarge, message) }
func MigrationRequired(message string) *Error   { return New(KindMigrationRequired, message) }
func WriteFailed(message string) *Error         { return New(KindWriteFailed, message) }
func ReadFailed(message string) *Error          { return New(KindReadFailed, message) }
func Transport(message string) *Error           { return New(KindTransport, message) }
func Cancelled(message string) *Error           { return New(KindCancelled, message) }
