package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/repository"
)

// compile-time check that *DB implements repository.ProfileRepository
var _ repository.ProfileRepository = (*DB)(nil)

const profileColumns = `id, user_id, name, avatar, first_name, last_name, phone, bio`

func scanProfile(row rowScanner) (*model.Profile, error) {
	var (
		p                                   model.Profile
		avatar, first, last, phone, bio sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &avatar, &first, &last, &phone, &bio); err != nil {
		return nil, err
	}
	p.Avatar = stringPtr(avatar)
	p.FirstName = stringPtr(first)
	p.LastName = stringPtr(last)
	p.Phone = stringPtr(phone)
	p.Bio = stringPtr(bio)
	return &p, nil
}

func (db *DB) findProfile(ctx context.Context, column, value string) (*model.Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE `+column+` = ?`,
		value,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", value)
		}
		return nil, storeError("getting profile by "+column, err)
	}
	return p, nil
}

func (db *DB) FindProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	return db.findProfile(ctx, "id", id)
}

// FindProfileByOwner is the primary lookup: user_id is UNIQUE, so at most one row matches.
func (db *DB) FindProfileByOwner(ctx context.Context, userID string) (*model.Profile, error) {
	return db.findProfile(ctx, "user_id", userID)
}

// FindProfileByName looks a profile up by its owner's username.
func (db *DB) FindProfileByName(ctx context.Context, name string) (*model.Profile, error) {
	return db.findProfile(ctx, "name", name)
}

// UpdateProfileField writes one profile column. A nil value stores NULL.
//
// OWNER GUARD:
// With ownerGuard set, the predicate becomes "id = ? AND user_id = ?". If the
// row belongs to someone else nothing is written; a follow-up existence check
// tells a foreign row (ErrForbidden) apart from a missing one (ErrNotFound).
func (db *DB) UpdateProfileField(ctx context.Context, id string, field model.ProfileField, value *string, ownerGuard string) error {
	column, ok := field.Column()
	if !ok {
		return fmt.Errorf("sqlite: updating profile: unknown field %q", field)
	}

	query := `UPDATE profiles SET ` + column + ` = ? WHERE id = ?`
	args := []any{nullString(value), id}
	if ownerGuard != "" {
		query += ` AND user_id = ?`
		args = append(args, ownerGuard)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("updating profile "+column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("checking rows affected", err)
	}
	if n > 0 {
		return nil
	}

	if ownerGuard != "" {
		var exists bool
		err := db.conn.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM profiles WHERE id = ?)`, id,
		).Scan(&exists)
		if err != nil {
			return storeError("checking profile existence", err)
		}
		if exists {
			return apperror.Forbidden("profile belongs to another account")
		}
	}
	return apperror.NotFound("profile", id)
}
