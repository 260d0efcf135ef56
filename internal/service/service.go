// Package service contains the business logic layer of the admin panel.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses forms, renders pages, sets cookies
//	Service (business layer) → validates, authorizes, orchestrates
//	Repository (data layer)  → reads/writes SQLite
//
// Every mutation follows the same protocol:
//
//  1. Validate the submitted value (internal/validate). A failure returns
//     apperror.FieldErrors and touches nothing.
//  2. Authorize the viewer against the target (internal/policy). A denial
//     returns a "Not authorized." flash and apperror.ErrForbidden.
//  3. For unique fields, look for another account holding the value.
//  4. Write through the repository, scoped to the target id.
//  5. Report the result as an Outcome: a flash message for the next page and,
//     for some operations, where to redirect.
//
// The viewer is always an explicit parameter. Services keep no state between
// calls, so one instance serves every request.
package service

import (
	"errors"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/flash"
	"github.com/sakif/admin-panel/internal/metrics"
	"github.com/sakif/admin-panel/internal/validate"
)

// Operation names, used as the "operation" metric label and in logs.
const (
	OpRegister    = "register"
	OpSetUsername = "set-username"
	OpSetEmail    = "set-email"
	OpSetActive   = "set-active"
	OpSetRole     = "set-role"
	OpDeleteUser  = "delete-account"
	OpSetProfile  = "set-profile-field"
)

const (
	listingPath = "/users"
	loginPath   = "/login"

	msgNotAllowed  = "Not authorized."
	msgNoSuchUser  = "User not found."
	msgUsernameDup = "Username already exist!"
	msgEmailDup    = "Email already in use!"
)

// Outcome is what a mutation reports back to the handler.
//
// Flash is shown on the next rendered page. Redirect, when set, is where the
// browser should go next; an empty Redirect leaves the choice to the handler
// (usually the page the form was posted from).
type Outcome struct {
	Flash    *flash.Flash
	Redirect string
}

// outcomeLabel classifies err for the mutations_total metric.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, apperror.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, apperror.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, apperror.ErrForbidden):
		return metrics.OutcomeForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}

// validateTarget checks the hidden target id and the submitted value
// together, so a form with both wrong shows both messages.
func validateTarget[T any](rawID, raw string, parse func(string) (T, error)) (string, T, error) {
	var zero T
	fe := apperror.FieldErrors{}

	id, err := validate.ID(rawID)
	fe.Merge(apperror.Fields(err))

	value, err := parse(raw)
	fe.Merge(apperror.Fields(err))

	if err := fe.Err(); err != nil {
		return "", zero, err
	}
	return id, value, nil
}

// remapConflict replaces a store-level uniqueness error with the same
// field-scoped message the pre-check produces. Two requests can both pass the
// pre-check; the UNIQUE constraint decides, and the loser must read the same
// "already exists" message.
func remapConflict(err error, field, message string) error {
	if errors.Is(err, apperror.ErrConflict) {
		return apperror.Conflict(field, message)
	}
	return err
}
