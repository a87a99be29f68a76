package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solumlabs/authcore/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func userRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "status", "role_id",
		"mfa_secret", "mfa_pending_secret", "mfa_enabled",
		"password_changed_at", "refresh_token_hash", "created_at", "updated_at",
	}).AddRow("u1", "a@example.com", "$argon2id$...", "active", "r1",
		nil, nil, false, nil, nil, now, now)
}

func TestUserCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "dup@example.com", "hash", "active", "r1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Users(context.Background()).Create(context.Background(), &auth.User{
		Email:        "dup@example.com",
		PasswordHash: "hash",
		Status:       "active",
		RoleID:       "r1",
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("(?s)select .* from users where email").
		WithArgs("a@example.com").
		WillReturnRows(userRows())

	u, err := store.Users(context.Background()).FindByEmail(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if u.ID != "u1" || u.Email != "a@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.MFASecret != nil || u.RefreshTokenHash != nil {
		t.Fatal("null columns must scan to nil pointers")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("(?s)select .* from users where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Users(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSwapRefreshDigest(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users set refresh_token_hash").
		WithArgs("u1", "old-digest", "new-digest").
		WillReturnResult(sqlmock.NewResult(0, 1))
	swapped, err := store.Users(context.Background()).SwapRefreshDigest(context.Background(), "u1", "old-digest", "new-digest")
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !swapped {
		t.Fatal("expected swap to win when stored digest matches")
	}

	// A stale old digest updates zero rows: the race is lost.
	mock.ExpectExec("update users set refresh_token_hash").
		WithArgs("u1", "stale-digest", "newer-digest").
		WillReturnResult(sqlmock.NewResult(0, 0))
	swapped, err = store.Users(context.Background()).SwapRefreshDigest(context.Background(), "u1", "stale-digest", "newer-digest")
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if swapped {
		t.Fatal("stale digest must lose the compare-and-swap")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPromoteMFASecretRequiresPending(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update users").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(context.Background()).PromoteMFASecret(context.Background(), "u1")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound when no pending secret", err)
	}
}
