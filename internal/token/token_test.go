package token

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, opts ...Option) *Issuer {
	t.Helper()
	iss, err := NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour, opts...)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

func TestNewIssuerRequiresDistinctSecrets(t *testing.T) {
	if _, err := NewIssuer("same", "same", time.Minute, time.Hour); err == nil {
		t.Fatal("expected error for identical secrets")
	}
	if _, err := NewIssuer("", "refresh", time.Minute, time.Hour); err == nil {
		t.Fatal("expected error for empty access secret")
	}
}

func TestIssuePairSharesJti(t *testing.T) {
	iss := newTestIssuer(t)
	pair, err := iss.IssuePair("user-1", "u@example.com")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if pair.SessionID == "" {
		t.Fatal("pair must carry a session id")
	}
	access, err := iss.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	refresh, err := iss.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if access.SessionID() != pair.SessionID || refresh.SessionID() != pair.SessionID {
		t.Fatal("both tokens must embed the pair's session id")
	}
	if access.Subject != "user-1" || refresh.Subject != "user-1" {
		t.Fatal("both tokens must carry the subject")
	}
	if access.Email != "u@example.com" {
		t.Fatalf("access email = %q", access.Email)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	iss := newTestIssuer(t)
	pair, err := iss.IssuePair("user-1", "u@example.com")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := iss.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("refresh token must not pass access verification")
	}
	if _, err := iss.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("access token must not pass refresh verification")
	}
}

func TestVerifyRejectsExpiredAccessToken(t *testing.T) {
	current := time.Now()
	iss := newTestIssuer(t, WithClock(func() time.Time { return current }))
	pair, err := iss.IssuePair("user-1", "u@example.com")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	current = current.Add(16 * time.Minute)
	if _, err := iss.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("expired access token must not verify")
	}
	// The refresh token has the longer lifetime and is still valid here.
	if _, err := iss.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh token should still verify: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	iss := newTestIssuer(t)
	other, err := NewIssuer("other-access", "other-refresh", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	pair, err := other.IssuePair("user-1", "u@example.com")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := iss.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("token signed with a foreign secret must not verify")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	iss := newTestIssuer(t)
	for _, raw := range []string{"", "   ", "not.a.jwt", "a.b"} {
		if _, err := iss.VerifyAccess(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("raw %q: expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestDigestIsStableAndHex(t *testing.T) {
	a := Digest("token-value")
	b := Digest("token-value")
	if a != b {
		t.Fatal("digest must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("digest length = %d, want 64", len(a))
	}
	if a == Digest("other-value") {
		t.Fatal("distinct tokens must not share a digest")
	}
}
