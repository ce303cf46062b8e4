package yaradb

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error the way an HTTP adapter sitting on top of this
// package would need to, without this package knowing anything about HTTP.
type Kind int

const (
	// KindUnknown is returned by [Error.Kind] for errors not produced by
	// this package (or for a nil receiver).
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindReadOnly
	KindDurability
)

// String renders the kind the way it's named in the spec this package
// implements: NOT_FOUND, CONFLICT, VALIDATION, READ_ONLY, DURABILITY.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindValidation:
		return "VALIDATION"
	case KindReadOnly:
		return "READ_ONLY"
	case KindDurability:
		return "DURABILITY"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors. Check with [errors.Is]; [Error.Kind] classifies any
// error produced by this package, wrapped or not.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrReadOnly   = errors.New("table is read-only")
	ErrDurability = errors.New("durability failure")

	// ErrClosed is returned by the document, table and index operations
	// of an [Engine] called after [Engine.Close]. Close itself returns nil
	// on a second call, and Checkpoint does not check for it.
	ErrClosed = errors.New("engine closed")
)

var sentinelKinds = map[error]Kind{
	ErrNotFound:   KindNotFound,
	ErrConflict:   KindConflict,
	ErrValidation: KindValidation,
	ErrReadOnly:   KindReadOnly,
	ErrDurability: KindDurability,
}

// Error is the uniform error type returned by all public yaradb APIs.
//
// It carries whichever of DocID/Table/Field is known at the point the
// error was produced, appended to the underlying error message:
//
//	conflict: version mismatch (doc_id=... table=users)
//
// Use [errors.As] to extract the structured fields, or [Error.Kind] (or
// plain [errors.Is] against the sentinels above) to classify the failure.
type Error struct {
	DocID string
	Table string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := e.cause()
	suffix := e.suffix()

	if suffix == "" {
		return cause
	}

	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

func (e *Error) String() string { return e.Error() }

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.DocID != "" {
		parts = append(parts, "doc_id="+e.DocID)
	}

	if e.Table != "" {
		parts = append(parts, "table="+e.Table)
	}

	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

func (e *Error) cause() string {
	if e.Err == nil {
		return ""
	}

	return e.Err.Error()
}

// errOpt configures an [Error] during construction via [wrap].
type errOpt func(*Error)

func withDocID(id string) errOpt {
	return func(e *Error) { e.DocID = id }
}

func withTable(name string) errOpt {
	return func(e *Error) { e.Table = name }
}

func withField(field string) errOpt {
	return func(e *Error) { e.Field = field }
}

// wrap creates an [*Error] with optional document/table/field context.
//
//   - Returns nil if err is nil.
//   - Returns err unchanged if it's already [*Error] with no new options.
//   - Inherits DocID/Table/Field from an inner [*Error] when wrapping
//     (new options can override), and unwraps the inner [*Error] to avoid
//     duplicate suffixes in the message.
func wrap(err error, opts ...errOpt) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	isDirectError := errors.As(err, &existing)

	if isDirectError && len(opts) == 0 {
		return existing
	}

	e := &Error{Err: err}

	if isDirectError {
		e.DocID = existing.DocID
		e.Table = existing.Table
		e.Field = existing.Field
		e.Err = existing.Err
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// errValidationf builds an error wrapping [ErrValidation] with a
// formatted message, the common shape validation failures take
// throughout this package.
func errValidationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Kind classifies e against this package's sentinel kinds. Equivalent to
// ErrorKind(e) but convenient when you already have an [*Error] in hand
// (e.g. from [errors.As]).
func (e *Error) Kind() Kind {
	return ErrorKind(e)
}

// ErrorKind classifies err against this package's sentinel kinds by
// walking the error chain with [errors.Is]. Returns [KindUnknown] if err
// is nil or matches none of them.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	return KindUnknown
}
