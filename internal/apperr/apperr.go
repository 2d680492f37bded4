// Package apperr defines the error kinds shared by the sync core.
//
// A Kind is a short stable string. It is what gets recorded as the
// error_type of a SyncFailed event and what the command-line boundary maps
// to an exit status or HTTP-style code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure.
type Kind string

const (
	Unauthorized               Kind = "Unauthorized"
	TargetCalendarNotFound     Kind = "TargetCalendarNotFound"
	TargetCalendarAccessDenied Kind = "TargetCalendarAccessDenied"
	IcsSource                  Kind = "IcsSourceError"
	IcsParsing                 Kind = "IcsParsingError"
	RecurringEvent             Kind = "RecurringEventError"
	InvalidEvent               Kind = "InvalidEvent"
	SyncProfileNotFound        Kind = "SyncProfileNotFound"
	DailySyncLimitExceeded     Kind = "DailySyncLimitExceeded"
	RulesetValidation          Kind = "RulesetValidationError"
	RulesetGeneration          Kind = "RulesetGenerationError"
	Validation                 Kind = "ValidationError"
	Programming                Kind = "ProgrammingError"
	Internal                   Kind = "InternalError"
)

// parent returns the broader kind k belongs to, or "" for root kinds.
func (k Kind) parent() Kind {
	switch k {
	case RecurringEvent:
		return IcsParsing
	}
	return ""
}

// HTTPStatus maps a kind to the status code the boundary reports.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthorized:
		return http.StatusUnauthorized
	case TargetCalendarAccessDenied:
		return http.StatusForbidden
	case TargetCalendarNotFound, SyncProfileNotFound:
		return http.StatusNotFound
	case DailySyncLimitExceeded:
		return http.StatusTooManyRequests
	case IcsSource, IcsParsing, RecurringEvent, InvalidEvent, RulesetValidation, Validation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or Internal when none is tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether any tagged error in err's chain is of kind, or of a
// narrower kind whose parent is kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		for k := e.Kind; k != ""; k = k.parent() {
			if k == kind {
				return true
			}
		}
		err = e.Err
	}
	return false
}

// Message returns the message of the outermost tagged error, falling back
// to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
