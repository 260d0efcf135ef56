package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

const accountColumns = `id, username, email, password_hash, role, active, created_at, updated_at`

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// findAccount runs a single-row lookup on one of the indexed columns.
// column is always a constant from this file, never user input.
func (db *DB) findAccount(ctx context.Context, column, value string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+column+` = ?`,
		value,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", value)
		}
		return nil, storeError("getting account by "+column, err)
	}
	return a, nil
}

// FindAccountByID retrieves an account by its id.
// Returns apperror.ErrNotFound if no account exists with that id.
func (db *DB) FindAccountByID(ctx context.Context, id string) (*model.Account, error) {
	return db.findAccount(ctx, "id", id)
}

// FindAccountByUsername expects an already-normalized (lowercased) username.
func (db *DB) FindAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return db.findAccount(ctx, "username", username)
}

// FindAccountByEmail expects an already-normalized (lowercased) email.
func (db *DB) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return db.findAccount(ctx, "email", email)
}

func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, storeError("counting accounts", err)
	}
	return n, nil
}

// ListAccounts returns every account joined with its profile's display fields.
//
// LEFT JOIN rather than JOIN: an account that lost its profile row must still
// show up in the admin listing so it can be found and deleted.
func (db *DB) ListAccounts(ctx context.Context, order model.ListOrder) ([]model.AccountSummary, error) {
	orderBy := `a.username ASC`
	if order == model.OrderByUpdated {
		orderBy = `a.updated_at DESC, a.username ASC`
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.id, a.username, a.email, a.role, a.active, a.created_at, a.updated_at,
		       p.name, p.avatar, p.first_name, p.last_name
		FROM accounts a
		LEFT JOIN profiles p ON p.user_id = a.id
		ORDER BY `+orderBy)
	if err != nil {
		return nil, storeError("listing accounts", err)
	}
	defer rows.Close()

	summaries := []model.AccountSummary{}
	for rows.Next() {
		var (
			s                          model.AccountSummary
			name, avatar, first, last sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.Username, &s.Email, &s.Role, &s.Active, &s.CreatedAt, &s.UpdatedAt,
			&name, &avatar, &first, &last,
		); err != nil {
			return nil, storeError("scanning account row", err)
		}
		s.ProfileName = stringPtr(name)
		s.Avatar = stringPtr(avatar)
		s.FirstName = stringPtr(first)
		s.LastName = stringPtr(last)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterating accounts", err)
	}

	return summaries, nil
}

// InsertAccountAndProfile creates the account and its profile in one transaction.
//
// The caller supplies account.ID (registration generates it). The profile id
// is generated here when empty, and the profile is always bound to the
// account: UserID = account.ID, Name = account.Username.
func (db *DB) InsertAccountAndProfile(ctx context.Context, account *model.Account, profile *model.Profile) error {
	if account.ID == "" {
		return fmt.Errorf("sqlite: inserting account: id must be set")
	}
	if profile == nil {
		profile = &model.Profile{}
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	profile.UserID = account.ID
	profile.Name = account.Username

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeError("beginning registration transaction", err)
	}
	// Rollback after Commit is a no-op, so this is safe on the success path.
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return storeError("inserting account", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, name, avatar, first_name, last_name, phone, bio)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.UserID,
		profile.Name,
		nullString(profile.Avatar),
		nullString(profile.FirstName),
		nullString(profile.LastName),
		nullString(profile.Phone),
		nullString(profile.Bio),
	)
	if err != nil {
		return storeError("inserting profile", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("committing registration", err)
	}
	return nil
}

// UpdateAccountField changes one column of an account and bumps updated_at.
//
// A username change also rewrites profiles.name inside the same
// transaction. The foreign key cascades it already; the explicit UPDATE keeps
// the two in step even on a database created without the cascade.
func (db *DB) UpdateAccountField(ctx context.Context, id string, field model.AccountField, value any) error {
	column, ok := field.Column()
	if !ok {
		return fmt.Errorf("sqlite: updating account: unknown field %q", field)
	}
	if err := checkAccountValue(field, value); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeError("beginning account update", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return storeError("updating account "+column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("account", id)
	}

	if field == model.AccountUsername {
		if _, err := tx.ExecContext(ctx,
			`UPDATE profiles SET name = ? WHERE user_id = ?`, value, id,
		); err != nil {
			return storeError("re-syncing profile name", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("committing account update", err)
	}
	return nil
}

func checkAccountValue(field model.AccountField, value any) error {
	var ok bool
	switch field {
	case model.AccountUsername, model.AccountEmail:
		_, ok = value.(string)
	case model.AccountActive:
		_, ok = value.(bool)
	case model.AccountRole:
		var r model.Role
		r, ok = value.(model.Role)
		ok = ok && r.Valid()
	}
	if !ok {
		return fmt.Errorf("sqlite: updating account: invalid value %v for %s", value, field)
	}
	return nil
}

// DeleteAccount removes an account. The profile and sessions are removed by
// the ON DELETE CASCADE foreign keys.
func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return storeError("deleting account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}
