// Package repository defines the storage contracts the services depend on.
//
// Lookups return an error matching apperror.ErrNotFound when nothing matches.
// Writes that hit a UNIQUE constraint return apperror.ErrConflict with the
// offending field set, and infrastructure failures return
// apperror.ErrUnavailable. Implementations never cache across calls.
package repository

import (
	"context"
	"time"

	"github.com/sakif/admin-panel/internal/model"
)

type AccountRepository interface {
	FindAccountByID(ctx context.Context, id string) (*model.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	CountAccounts(ctx context.Context) (int, error)
	ListAccounts(ctx context.Context, order model.ListOrder) ([]model.AccountSummary, error)

	// InsertAccountAndProfile writes both rows in one transaction: either
	// both exist afterwards or neither does.
	InsertAccountAndProfile(ctx context.Context, account *model.Account, profile *model.Profile) error

	// UpdateAccountField sets a single column on the account with the given
	// id and refreshes updated_at. value must be a string for username and
	// email, a bool for active and a model.Role for role.
	UpdateAccountField(ctx context.Context, id string, field model.AccountField, value any) error

	// DeleteAccount removes the account; its profile and sessions go with it.
	DeleteAccount(ctx context.Context, id string) error
}

type ProfileRepository interface {
	FindProfileByID(ctx context.Context, id string) (*model.Profile, error)
	FindProfileByOwner(ctx context.Context, userID string) (*model.Profile, error)
	FindProfileByName(ctx context.Context, name string) (*model.Profile, error)

	// UpdateProfileField sets (or clears, when value is nil) one column.
	// A non-empty ownerGuard restricts the write to rows owned by that
	// account; a mismatch changes nothing and returns apperror.ErrForbidden.
	UpdateProfileField(ctx context.Context, id string, field model.ProfileField, value *string, ownerGuard string) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	FindSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store is everything the application needs from persistence.
type Store interface {
	AccountRepository
	ProfileRepository
	SessionRepository
	Ping(ctx context.Context) error
}
