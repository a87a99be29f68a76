package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/ids"
)

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx,
		`select id, name, created_at from roles where id = $1`, id,
	).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// EnsureByName creates the role on first reference. The insert races safely
// against concurrent signups: on a unique violation it falls through to the
// select.
func (s *roleStore) EnsureByName(ctx context.Context, name string) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx,
		`select id, name, created_at from roles where name = $1`, name,
	).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err == nil {
		return &role, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	id := ids.New()
	err = s.db.QueryRowContext(ctx, `
		insert into roles (id, name) values ($1, $2)
		on conflict (name) do update set name = excluded.name
		returning id, name, created_at
	`, id, name).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name, resource, action)
			values ($1, $2, $3, $4)
			on conflict (resource, action) do nothing
		`, p.ID, p.Name, p.Resource, p.Action)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.ErrConflict
			}
			return err
		}
	}
	return nil
}

func (s *permissionStore) All(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, resource, action from permissions order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		_, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id) values ($1, $2)
		`, roleID, permID)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}
