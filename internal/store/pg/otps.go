package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/solumlabs/authcore/internal/auth"
)

type otpStore struct{ db *sql.DB }

const otpColumns = `id, user_id, code_hash, type, is_used, expires_at, created_at`

func (s *otpStore) Create(ctx context.Context, o *auth.Otp) error {
	_, err := s.db.ExecContext(ctx, `
		insert into otps (`+otpColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.UserID, o.CodeHash, o.Type, o.IsUsed, o.ExpiresAt, o.CreatedAt)
	return err
}

func (s *otpStore) FindPending(ctx context.Context, userID, otpType string) (*auth.Otp, error) {
	return scanOtp(s.db.QueryRowContext(ctx, `
		select `+otpColumns+` from otps
		where user_id = $1 and type = $2 and is_used = false and expires_at > now()
		order by created_at desc limit 1
	`, userID, otpType))
}

func (s *otpStore) FindVerified(ctx context.Context, userID, otpType string) (*auth.Otp, error) {
	return scanOtp(s.db.QueryRowContext(ctx, `
		select `+otpColumns+` from otps
		where user_id = $1 and type = $2 and is_used = true and expires_at > now()
		order by created_at desc limit 1
	`, userID, otpType))
}

func scanOtp(row *sql.Row) (*auth.Otp, error) {
	var o auth.Otp
	err := row.Scan(&o.ID, &o.UserID, &o.CodeHash, &o.Type, &o.IsUsed, &o.ExpiresAt, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *otpStore) MarkUsed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update otps set is_used = true where id = $1 and is_used = false`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *otpStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from otps where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *otpStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from otps where user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *otpStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from otps where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
