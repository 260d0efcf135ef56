// Package apperror defines the error taxonomy shared by every layer.
//
// The service layer returns these errors, and handlers translate them into
// HTTP behaviour (re-render the form, flash and redirect, or 404). Callers
// should test with errors.Is against the sentinels, never by message text.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("store unavailable")
)

type AppError struct {
	Err     error  // sentinel (or underlying cause for ErrUnavailable)
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation on field. Message is shown next to
// the field, e.g. "Username already exist!".
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// The message stays generic so it never reveals which field was attempted.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unavailable wraps an infrastructure failure. errors.Is matches both
// ErrUnavailable and the original cause.
func Unavailable(cause error) *AppError {
	msg := "store unavailable"
	if cause != nil {
		msg = cause.Error()
	}
	return &AppError{
		Err:     unavailable{cause: cause},
		Message: msg,
	}
}

// unavailable lets one AppError unwrap to the sentinel and the cause.
type unavailable struct{ cause error }

func (u unavailable) Error() string {
	if u.cause == nil {
		return ErrUnavailable.Error()
	}
	return u.cause.Error()
}

func (u unavailable) Unwrap() []error {
	if u.cause == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, u.cause}
}

// FieldErrors collects validation messages per form field. A field can carry
// several messages (the password rules are reported together).
//
// The zero value is ready to use after make; a nil FieldErrors reports no errors.
type FieldErrors map[string][]string

// Add appends msg to field.
func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Merge copies every message of other into fe.
func (fe FieldErrors) Merge(other FieldErrors) {
	for field, msgs := range other {
		fe[field] = append(fe[field], msgs...)
	}
}

// First returns the first message for field, or "".
func (fe FieldErrors) First(field string) string {
	if msgs := fe[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Err returns fe as an error, or nil when it holds no messages.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(fe[f], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(fe, ErrValidation) true.
func (fe FieldErrors) Is(target error) bool {
	return target == ErrValidation
}

// Fields extracts field-scoped messages from err. ValidationFailed and
// Conflict errors become a single-entry map; FieldErrors is returned as is.
// Any other error yields nil.
func Fields(err error) FieldErrors {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Field != "" &&
		(errors.Is(appErr, ErrValidation) || errors.Is(appErr, ErrConflict)) {
		return FieldErrors{appErr.Field: {appErr.Message}}
	}
	return nil
}
