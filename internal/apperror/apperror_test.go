package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	cause := errors.New("disk I/O error")

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{"NotFound wraps ErrNotFound", NotFound("account", "abc123"), ErrNotFound, true},
		{"ValidationFailed wraps ErrValidation", ValidationFailed("username", "too short"), ErrValidation, true},
		{"Conflict wraps ErrConflict", Conflict("email", "Email already in use!"), ErrConflict, true},
		{"Forbidden wraps ErrForbidden", Forbidden("Not authorized."), ErrForbidden, true},
		{"Unavailable wraps ErrUnavailable", Unavailable(cause), ErrUnavailable, true},
		{"Unavailable keeps its cause", Unavailable(cause), cause, true},
		{"Unavailable without cause", Unavailable(nil), ErrUnavailable, true},
		{"wrapped Conflict still matches", fmt.Errorf("service: %w", Conflict("username", "taken")), ErrConflict, true},
		{"FieldErrors matches ErrValidation", FieldErrors{"password": {"x"}}, ErrValidation, true},
		{"NotFound does NOT match ErrValidation", NotFound("account", "abc123"), ErrValidation, false},
		{"Conflict does NOT match ErrUnavailable", Conflict("email", "taken"), ErrUnavailable, false},
		{"FieldErrors does NOT match ErrConflict", FieldErrors{"password": {"x"}}, ErrConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{"NotFound message includes resource and id", NotFound("account", "abc123"), "account not found with id abc123"},
		{"ValidationFailed uses custom message", ValidationFailed("username", "too short"), "too short"},
		{"Conflict uses custom message", Conflict("username", "Username already exist!"), "Username already exist!"},
		{"Unavailable carries the cause text", Unavailable(errors.New("database is locked")), "database is locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{}
	if fe.Err() != nil {
		t.Fatal("Err() on empty FieldErrors should be nil")
	}

	fe.Add("password", "Password must contain at least one number")
	fe.Add("password", "Password must contain at least one special character")
	fe.Add("passwordConfirm", "Passwords dont match")

	if got := len(fe["password"]); got != 2 {
		t.Errorf("len(password) = %d, want 2", got)
	}
	if got := fe.First("passwordConfirm"); got != "Passwords dont match" {
		t.Errorf("First() = %q", got)
	}
	if fe.First("email") != "" {
		t.Error("First() on a clean field should be empty")
	}
	if fe.Err() == nil {
		t.Fatal("Err() should be non-nil once a message is added")
	}

	other := FieldErrors{"email": {"Invalid email"}}
	fe.Merge(other)
	if fe.First("email") != "Invalid email" {
		t.Error("Merge() did not copy the email message")
	}
}

func TestFields(t *testing.T) {
	t.Run("conflict becomes a single field", func(t *testing.T) {
		got := Fields(fmt.Errorf("wrap: %w", Conflict("username", "Username already exist!")))
		if got.First("username") != "Username already exist!" {
			t.Errorf("Fields() = %v", got)
		}
	})

	t.Run("field errors pass through", func(t *testing.T) {
		in := FieldErrors{"email": {"Invalid email"}}
		got := Fields(in)
		if got.First("email") != "Invalid email" {
			t.Errorf("Fields() = %v", got)
		}
	})

	t.Run("forbidden is not field scoped", func(t *testing.T) {
		if got := Fields(Forbidden("Not authorized.")); got != nil {
			t.Errorf("Fields() = %v, want nil", got)
		}
	})
}
