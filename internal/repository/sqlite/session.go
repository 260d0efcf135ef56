package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/repository"
)

// compile-time check that *DB implements repository.SessionRepository
var _ repository.SessionRepository = (*DB)(nil)

// Sessions store expires_at as unix seconds so the expiry sweep is a plain
// integer comparison.

func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`,
		s.ID, s.UserID, s.ExpiresAt.Unix(),
	)
	if err != nil {
		return storeError("inserting session", err)
	}
	return nil
}

func (db *DB) FindSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s       model.Session
		expires int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, storeError("getting session", err)
	}
	s.ExpiresAt = time.Unix(expires, 0).UTC()
	return &s, nil
}

// DeleteSession is idempotent: deleting an unknown session is not an error,
// so logging out twice is harmless.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return storeError("deleting session", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired at or before now
// and returns how many were removed.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, now.Unix(),
	)
	if err != nil {
		return 0, storeError("deleting expired sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("checking rows affected", err)
	}
	return n, nil
}
