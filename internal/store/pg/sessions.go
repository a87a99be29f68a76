package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/solumlabs/authcore/internal/auth"
)

type sessionStore struct{ db *sql.DB }

const sessionColumns = `id, user_id, token_id,
	device_browser, device_os, device_device, device_platform,
	ip_address, user_agent, is_active, is_current,
	last_used, expires_at, created_at`

// Create inserts the session as active and current after demoting every
// other active session of the user, inside one transaction so the
// at-most-one-current invariant survives concurrent logins.
func (s *sessionStore) Create(ctx context.Context, sess *auth.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update sessions set is_current = false
		where user_id = $1 and is_active = true and is_current = true
	`, sess.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into sessions (`+sessionColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		sess.ID, sess.UserID, sess.TokenID,
		sess.Device.Browser, sess.Device.OS, sess.Device.Device, sess.Device.Platform,
		sess.IPAddress, sess.UserAgent, sess.IsActive, sess.IsCurrent,
		sess.LastUsed, sess.ExpiresAt, sess.CreatedAt,
	); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return tx.Commit()
}

func (s *sessionStore) Find(ctx context.Context, id string) (*auth.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id = $1`, id))
}

func (s *sessionStore) FindByTokenID(ctx context.Context, tokenID string) (*auth.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where token_id = $1`, tokenID))
}

func scanSession(row *sql.Row) (*auth.Session, error) {
	var sess auth.Session
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.TokenID,
		&sess.Device.Browser, &sess.Device.OS, &sess.Device.Device, &sess.Device.Platform,
		&sess.IPAddress, &sess.UserAgent, &sess.IsActive, &sess.IsCurrent,
		&sess.LastUsed, &sess.ExpiresAt, &sess.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) UpdateTokenID(ctx context.Context, sessionID, tokenID string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set token_id = $2 where id = $1`, sessionID, tokenID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sessionStore) Touch(ctx context.Context, sessionID string, when time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set last_used = $2 where id = $1`, sessionID, when)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sessionStore) ListActive(ctx context.Context, userID string) ([]*auth.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+` from sessions
		where user_id = $1 and is_active = true
		order by last_used desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		var sess auth.Session
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.TokenID,
			&sess.Device.Browser, &sess.Device.OS, &sess.Device.Device, &sess.Device.Platform,
			&sess.IPAddress, &sess.UserAgent, &sess.IsActive, &sess.IsCurrent,
			&sess.LastUsed, &sess.ExpiresAt, &sess.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// Deactivate is a one-way transition; already-inactive rows report false.
func (s *sessionStore) Deactivate(ctx context.Context, sessionID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set is_active = false, is_current = false
		where id = $1 and user_id = $2 and is_active = true
	`, sessionID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sessionStore) DeactivateOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set is_active = false, is_current = false
		where user_id = $1 and id <> $2 and is_active = true
	`, userID, keepSessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set is_active = false, is_current = false
		where user_id = $1 and is_active = true
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set is_active = false, is_current = false
		where is_active = true and expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) AppendActivity(ctx context.Context, a *auth.SessionActivity) error {
	_, err := s.db.ExecContext(ctx, `
		insert into session_activity (id, session_id, activity, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.SessionID, a.Activity, a.IPAddress, a.UserAgent, a.CreatedAt)
	return err
}
