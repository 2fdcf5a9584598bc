// Package apperr is the error taxonomy of the insights pipeline.
//
// Three kinds of failure reach a component:
//
//   - validation errors, raised locally before any request is issued
//     (no file selected, unreadable payload, unknown source)
//   - transport errors: network failures, timeouts and non-2xx responses
//     that carry no structured detail
//   - collaborator errors: non-2xx responses whose body carries a
//     structured "detail" string
//
// Components never propagate these to a global handler; they reduce them to a
// single display string with Display and keep it in their own error slot.
package apperr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrValidation marks locally detected input problems.
	ErrValidation = errors.New("validation error")

	// ErrMissingFile is returned by an upload submitted with no file selected.
	ErrMissingFile = Validation("Please select a file")

	// ErrBusy is returned when a component is re-triggered while its previous
	// request is still pending.
	ErrBusy = errors.New("request already in progress")

	// ErrSuperseded is returned to the issuer of a request whose response
	// arrived after a newer request of the same kind; the response is dropped.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// Validation returns a new error marked as a validation error.
func Validation(msg string) error {
	return errors.Mark(errors.NewWithDepth(1, msg), ErrValidation)
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrValidation)
}

// MarkValidation tags an existing error as a validation error.
func MarkValidation(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrValidation)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// TransportError is a failed exchange with the collaborator: the request never
// completed, timed out, or came back non-2xx without a detail payload.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "Network Error"
}

func (e *TransportError) Unwrap() error { return e.Err }

// CollaboratorError is a non-2xx response carrying a structured detail.
type CollaboratorError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Detail)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsCollaborator(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}

// Display reduces err to the single string a component shows. Precedence:
// collaborator detail, then the transport/validation message, then fallback.
func Display(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) && strings.TrimSpace(ce.Detail) != "" {
		return ce.Detail
	}
	var te *TransportError
	if errors.As(err, &te) {
		if msg := strings.TrimSpace(te.Error()); msg != "" {
			return msg
		}
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
