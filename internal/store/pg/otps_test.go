package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/solumlabs/authcore/internal/auth"
)

func TestOtpFindPendingReturnsLatestUnused(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "code_hash", "type", "is_used", "expires_at", "created_at",
	}).AddRow("o2", "u1", "digest", "PASSWORD_RESET", false, now.Add(10*time.Minute), now)

	mock.ExpectQuery("(?s)select .* from otps.*is_used = false").
		WithArgs("u1", "PASSWORD_RESET").
		WillReturnRows(rows)

	otp, err := store.Otps(context.Background()).FindPending(context.Background(), "u1", "PASSWORD_RESET")
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if otp.ID != "o2" || otp.IsUsed {
		t.Fatalf("unexpected otp: %+v", otp)
	}
}

func TestOtpFindPendingNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("(?s)select .* from otps").
		WithArgs("u1", "PASSWORD_RESET").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "code_hash", "type", "is_used", "expires_at", "created_at",
		}))

	_, err := store.Otps(context.Background()).FindPending(context.Background(), "u1", "PASSWORD_RESET")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOtpMarkUsedGuardsAgainstDoubleSpend(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update otps set is_used = true").
		WithArgs("o1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Otps(context.Background()).MarkUsed(context.Background(), "o1"); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	// A second MarkUsed matches zero rows because of the is_used guard.
	mock.ExpectExec("update otps set is_used = true").
		WithArgs("o1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Otps(context.Background()).MarkUsed(context.Background(), "o1")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOtpDeleteExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("delete from otps where expires_at").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.Otps(context.Background()).DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
}
