// Package validate normalizes and checks submitted form values.
//
// Each function takes the raw form string and returns either the typed,
// normalized value or an apperror.FieldErrors keyed by form field name.
// Nothing here touches the store: uniqueness is the service's job.
package validate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/model"
)

// Form field names, shared with the templates.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldPasswordConfirm = "passwordConfirm"
	FieldActive          = "active"
	FieldRole            = "role"
	FieldID              = "id"
	FieldValue           = "value"
)

const (
	minUsernameLen = 2
	maxUsernameLen = 64
	minPasswordLen = 8
	maxPasswordLen = 256
	maxTextLen     = 1024
	maxBioLen      = 4096
)

// validator.Validate caches struct metadata and is safe for concurrent use.
var v = validator.New()

// Username trims, lowercases and checks a username.
func Username(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))

	fe := apperror.FieldErrors{}
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen {
		fe.Add(FieldUsername, "Username must be at least 2 characters long")
	}
	if n > maxUsernameLen {
		fe.Add(FieldUsername, "Username must be at most 64 characters long")
	}
	if n > 0 && !isUsernameCharset(username) {
		fe.Add(FieldUsername, "Username may only contain letters, numbers and underscores")
	}

	if err := fe.Err(); err != nil {
		return "", err
	}
	return username, nil
}

// isUsernameCharset matches [A-Za-z0-9_]+ (ASCII only).
func isUsernameCharset(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// Email trims, lowercases and checks the address syntax.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))

	if err := v.Var(email, "required,email,max=254"); err != nil {
		return "", apperror.FieldErrors{FieldEmail: {"Invalid email"}}
	}
	return email, nil
}

// Password checks the strength rules and reports every rule that fails,
// in a fixed order. The password is never trimmed.
func Password(raw string) error {
	fe := apperror.FieldErrors{}

	if utf8.RuneCountInString(raw) < minPasswordLen {
		fe.Add(FieldPassword, "Password must be at least 8 characters long")
	}
	if utf8.RuneCountInString(raw) > maxPasswordLen {
		fe.Add(FieldPassword, "Password must be at most 256 characters long")
	}

	var upper, lower, digit, special bool
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	if !upper {
		fe.Add(FieldPassword, "Password must contain at least one uppercase letter")
	}
	if !lower {
		fe.Add(FieldPassword, "Password must contain at least one lowercase letter")
	}
	if !digit {
		fe.Add(FieldPassword, "Password must contain at least one number")
	}
	if !special {
		fe.Add(FieldPassword, "Password must contain at least one special character")
	}

	return fe.Err()
}

// RegistrationInput is the raw registration form.
type RegistrationInput struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
}

// Registration is a registration form that passed validation.
type Registration struct {
	Username string
	Email    string
	Password string
}

// ValidateRegistration checks every field and the confirmation, collecting all
// messages so the form can show them at once.
func ValidateRegistration(in RegistrationInput) (Registration, error) {
	fe := apperror.FieldErrors{}
	var out Registration

	username, err := Username(in.Username)
	fe.Merge(apperror.Fields(err))
	out.Username = username

	email, err := Email(in.Email)
	fe.Merge(apperror.Fields(err))
	out.Email = email

	fe.Merge(apperror.Fields(Password(in.Password)))
	out.Password = in.Password

	// Reported even when the password itself is invalid.
	if in.PasswordConfirm != in.Password {
		fe.Add(FieldPasswordConfirm, "Passwords dont match")
	}

	if err := fe.Err(); err != nil {
		return Registration{}, err
	}
	return out, nil
}

// Credentials is a normalized login form.
type Credentials struct {
	Username string
	Password string
}

// Login normalizes the username the same way registration does. It checks
// presence only: strength rules would leak which accounts predate them.
func Login(username, password string) (Credentials, error) {
	c := Credentials{
		Username: strings.ToLower(strings.TrimSpace(username)),
		Password: password,
	}

	fe := apperror.FieldErrors{}
	if c.Username == "" {
		fe.Add(FieldUsername, "Username is required")
	}
	if c.Password == "" {
		fe.Add(FieldPassword, "Password is required")
	}
	if err := fe.Err(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// OptionalText normalizes an optional profile field. Surrounding whitespace
// is trimmed; an empty result means "cleared" and is returned as nil.
func OptionalText(field model.ProfileField, raw string) (*string, error) {
	if _, ok := field.Column(); !ok {
		return nil, apperror.FieldErrors{FieldValue: {"Unknown field"}}
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	limit := maxTextLen
	if field == model.ProfileBio {
		limit = maxBioLen
	}
	if utf8.RuneCountInString(s) > limit {
		return nil, apperror.FieldErrors{FieldValue: {field.Label() + " is too long"}}
	}
	if strings.IndexFunc(s, isDisallowedControl) >= 0 {
		return nil, apperror.FieldErrors{FieldValue: {field.Label() + " contains invalid characters"}}
	}

	return &s, nil
}

// isDisallowedControl rejects control characters other than the line breaks
// and tabs a bio may legitimately contain.
func isDisallowedControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
}

// Active parses the active toggle. An unchecked checkbox submits nothing,
// so the empty string means false.
func Active(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0", "":
		return false, nil
	}
	return false, apperror.FieldErrors{FieldActive: {"Invalid active value"}}
}

// Role parses a role select value. The match is exact and case-sensitive.
func Role(raw string) (model.Role, error) {
	r, err := model.ParseRole(strings.TrimSpace(raw))
	if err != nil {
		return "", apperror.FieldErrors{FieldRole: {"Invalid role"}}
	}
	return r, nil
}

// ID checks that a hidden target id was submitted.
func ID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > 64 {
		return "", apperror.FieldErrors{FieldID: {"Invalid id"}}
	}
	return id, nil
}
