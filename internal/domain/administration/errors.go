package administration

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies a domain failure. Kinds are stable identifiers the
// presentation layer translates into clinician-facing messages; the core
// never retries on its own. ConcurrentModification is the only kind a
// caller may safely retry, after a fresh read.
type ErrorKind string

const (
	KindNotFound               ErrorKind = "not_found"
	KindInvalidTransition      ErrorKind = "invalid_transition"
	KindInvalidState           ErrorKind = "invalid_state"
	KindValidation             ErrorKind = "validation_error"
	KindConcurrentModification ErrorKind = "concurrent_modification"
	KindContinuityViolation    ErrorKind = "continuity_violation"
)

// Error carries the kind plus the offending state or field so callers can
// render a precise message without parsing error strings.
type Error struct {
	Kind      ErrorKind
	ID        uuid.UUID
	Current   Status
	Requested Action
	Field     string
	Detail    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("administration %s not found", e.ID)
	case KindInvalidTransition:
		return fmt.Sprintf("cannot %s administration %s in status %q", e.Requested, e.ID, e.Current)
	case KindInvalidState:
		return fmt.Sprintf("administration %s is %q: %s", e.ID, e.Current, e.Detail)
	case KindValidation:
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
	case KindConcurrentModification:
		return fmt.Sprintf("administration %s was modified concurrently, reload and retry", e.ID)
	case KindContinuityViolation:
		return fmt.Sprintf("adjustment chain for administration %s is broken: %s", e.ID, e.Detail)
	}
	return string(e.Kind)
}

func notFoundErr(id uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, ID: id}
}

func invalidTransitionErr(id uuid.UUID, current Status, requested Action) *Error {
	return &Error{Kind: KindInvalidTransition, ID: id, Current: current, Requested: requested}
}

func invalidStateErr(id uuid.UUID, current Status, detail string) *Error {
	return &Error{Kind: KindInvalidState, ID: id, Current: current, Detail: detail}
}

func validationErr(field, detail string) *Error {
	return &Error{Kind: KindValidation, Field: field, Detail: detail}
}

func conflictErr(id uuid.UUID) *Error {
	return &Error{Kind: KindConcurrentModification, ID: id}
}

func continuityErr(id uuid.UUID, detail string) *Error {
	return &Error{Kind: KindContinuityViolation, ID: id, Detail: detail}
}

// KindOf returns the ErrorKind of err, or "" when err is not a domain Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
