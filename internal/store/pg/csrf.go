package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/solumlabs/authcore/internal/auth"
)

type csrfStore struct{ db *sql.DB }

func (s *csrfStore) Create(ctx context.Context, t *auth.CsrfToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into csrf_tokens (id, token, session_id, user_id, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Token, t.SessionID, t.UserID, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *csrfStore) Find(ctx context.Context, tokenValue string) (*auth.CsrfToken, error) {
	var t auth.CsrfToken
	err := s.db.QueryRowContext(ctx, `
		select id, token, session_id, user_id, expires_at, created_at
		from csrf_tokens where token = $1
	`, tokenValue).Scan(&t.ID, &t.Token, &t.SessionID, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *csrfStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from csrf_tokens where session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *csrfStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from csrf_tokens where user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *csrfStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from csrf_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
