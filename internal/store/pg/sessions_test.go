package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/solumlabs/authcore/internal/auth"
)

func TestSessionCreateDemotesOthersInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update sessions set is_current = false").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into sessions").
		WithArgs("s1", "u1", "jti-1",
			"Chrome", "Windows", "Desktop", "Desktop",
			"203.0.113.7", "ua-string", true, true,
			now, now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Sessions(context.Background()).Create(context.Background(), &auth.Session{
		ID:        "s1",
		UserID:    "u1",
		TokenID:   "jti-1",
		Device:    auth.DeviceInfo{Browser: "Chrome", OS: "Windows", Device: "Desktop", Platform: "Desktop"},
		IPAddress: "203.0.113.7",
		UserAgent: "ua-string",
		IsActive:  true,
		IsCurrent: true,
		LastUsed:  now,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionCreateRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update sessions set is_current = false").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into sessions").
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := store.Sessions(context.Background()).Create(context.Background(), &auth.Session{
		ID: "s1", UserID: "u1", TokenID: "jti-1",
		LastUsed: now, ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionDeactivateReportsRowChange(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update sessions set is_active = false").
		WithArgs("s1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := store.Sessions(context.Background()).Deactivate(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if !ok {
		t.Fatal("expected true for an active row")
	}

	// Second call: the row is already inactive.
	mock.ExpectExec("update sessions set is_active = false").
		WithArgs("s1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = store.Sessions(context.Background()).Deactivate(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if ok {
		t.Fatal("already-inactive row must report false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionFindByTokenID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_id",
		"device_browser", "device_os", "device_device", "device_platform",
		"ip_address", "user_agent", "is_active", "is_current",
		"last_used", "expires_at", "created_at",
	}).AddRow("s1", "u1", "jti-1", "Chrome", "Windows", "Desktop", "Desktop",
		"203.0.113.7", "ua", true, true, now, now.Add(time.Hour), now)

	mock.ExpectQuery("(?s)select .* from sessions where token_id").
		WithArgs("jti-1").
		WillReturnRows(rows)

	sess, err := store.Sessions(context.Background()).FindByTokenID(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("find by token id: %v", err)
	}
	if sess.ID != "s1" || sess.Device.Browser != "Chrome" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestDeactivateExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("update sessions set is_active = false").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Sessions(context.Background()).DeactivateExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("deactivate expired: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}
}
