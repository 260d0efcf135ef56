// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: plain values with no behaviour
// beyond a few small helpers. Persistence lives in internal/repository.
package model

import (
	"fmt"
	"time"
)

// Role is the access level attached to an Account.
//
// It's a named string type (not an int enum) so the value stored in the
// database, rendered in templates and submitted by forms is the same text.
type Role string

const (
	RoleUser      Role = "USER"
	RoleRedacteur Role = "REDACTEUR"
	RoleAdmin     Role = "ADMIN"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleUser, RoleRedacteur, RoleAdmin}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleRedacteur, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole converts a submitted form value into a Role.
// The match is exact: "admin" is not a valid role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("model: unknown role %q", s)
	}
	return r, nil
}

// Account is a registered user of the panel.
//
// Username and Email are always stored lowercased and trimmed; the
// repository relies on that for its UNIQUE constraints to be case-insensitive.
// PasswordHash is an argon2id PHC string and is never rendered.
type Account struct {
	ID           string    `json:"id"           db:"id"`
	Username     string    `json:"username"     db:"username"`
	Email        string    `json:"email"        db:"email"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	Role         Role      `json:"role"         db:"role"`
	Active       bool      `json:"active"       db:"active"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}

// IsAdmin reports whether the account holds the ADMIN role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// AccountField names the account columns that can be changed one at a time.
type AccountField string

const (
	AccountUsername AccountField = "username"
	AccountEmail    AccountField = "email"
	AccountActive   AccountField = "active"
	AccountRole     AccountField = "role"
)

// Column returns the SQL column backing the field.
func (f AccountField) Column() (string, bool) {
	switch f {
	case AccountUsername:
		return "username", true
	case AccountEmail:
		return "email", true
	case AccountActive:
		return "active", true
	case AccountRole:
		return "role", true
	}
	return "", false
}

// ListOrder selects how the account listing is sorted.
type ListOrder int

const (
	OrderByUsername ListOrder = iota // username ascending
	OrderByUpdated                   // updated_at descending
)

// ParseListOrder maps the ?sort= query value to a ListOrder.
// Anything unrecognised falls back to OrderByUsername.
func ParseListOrder(s string) ListOrder {
	if s == "updated" {
		return OrderByUpdated
	}
	return OrderByUsername
}

// AccountSummary is one row of the account listing: the account joined with
// the display fields of its profile.
type AccountSummary struct {
	ID          string
	Username    string
	Email       string
	Role        Role
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProfileName *string
	Avatar      *string
	FirstName   *string
	LastName    *string
}
