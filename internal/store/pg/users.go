package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/ids"
)

type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash, status, role_id,
	mfa_secret, mfa_pending_secret, mfa_enabled,
	password_changed_at, refresh_token_hash, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, status, role_id)
		values ($1, $2, $3, $4, $5)
	`, u.ID, u.Email, u.PasswordHash, u.Status, u.RoleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s *userStore) scanOne(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.RoleID,
		&u.MFASecret, &u.MFAPendingSecret, &u.MFAEnabled,
		&u.PasswordChangedAt, &u.RefreshTokenHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, password_changed_at = now(), updated_at = now()
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetRefreshDigest(ctx context.Context, userID string, digest *string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set refresh_token_hash = $2, updated_at = now() where id = $1
	`, userID, digest)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SwapRefreshDigest is the rotation CAS: the update only lands when the
// stored digest still equals the one presented, so two concurrent refreshes
// with the same token resolve to exactly one winner.
func (s *userStore) SwapRefreshDigest(ctx context.Context, userID, oldDigest, newDigest string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update users set refresh_token_hash = $3, updated_at = now()
		where id = $1 and refresh_token_hash = $2
	`, userID, oldDigest, newDigest)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *userStore) SetPendingMFASecret(ctx context.Context, userID, secret string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set mfa_pending_secret = $2, updated_at = now() where id = $1
	`, userID, secret)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) PromoteMFASecret(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set mfa_secret = mfa_pending_secret, mfa_pending_secret = null,
			mfa_enabled = true, updated_at = now()
		where id = $1 and mfa_pending_secret is not null
	`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) ClearMFA(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set mfa_secret = null, mfa_pending_secret = null,
			mfa_enabled = false, updated_at = now()
		where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
