package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solumlabs/authcore/internal/ids"
	"github.com/solumlabs/authcore/internal/obs"
)

const csrfTokenBytes = 32

// CsrfGuard issues and validates anti-forgery tokens using the
// double-submit-cookie pattern: the random token travels back in a request
// header while an HMAC of it rides in an http-only cookie. An attacker able
// to replay the header cannot also set the cookie, and vice versa.
type CsrfGuard struct {
	store  CsrfTokenStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCsrfGuard constructs a guard with the shared signing secret.
func NewCsrfGuard(store CsrfTokenStore, secret string, ttl time.Duration) (*CsrfGuard, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("csrf: signing secret is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CsrfGuard{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GenerateToken persists a fresh random 256-bit token, optionally bound to
// a session and/or user.
func (g *CsrfGuard) GenerateToken(ctx context.Context, sessionID, userID *string) (string, error) {
	raw := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	tok := hex.EncodeToString(raw)
	now := g.now().UTC()
	err := g.store.Create(ctx, &CsrfToken{
		ID:        ids.New(),
		Token:     tok,
		SessionID: sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(g.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return tok, nil
}

// ValidateToken checks that the token exists, is unexpired, and matches the
// supplied session/user context when the stored row carries a binding.
func (g *CsrfGuard) ValidateToken(ctx context.Context, tokenValue string, sessionID, userID *string) bool {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return false
	}
	rec, err := g.store.Find(ctx, tokenValue)
	if err != nil {
		return false
	}
	if g.now().UTC().After(rec.ExpiresAt) {
		return false
	}
	if rec.SessionID != nil && sessionID != nil && *rec.SessionID != *sessionID {
		return false
	}
	if rec.UserID != nil && userID != nil && *rec.UserID != *userID {
		return false
	}
	return true
}

// CookieValue derives the double-submit cookie for a token:
// hex(HMAC-SHA256(secret, token)).
func (g *CsrfGuard) CookieValue(tokenValue string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(tokenValue))
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateDoubleSubmit issues a token plus its cookie counterpart.
func (g *CsrfGuard) CreateDoubleSubmit(ctx context.Context, sessionID, userID *string) (tokenValue, cookieValue string, err error) {
	tokenValue, err = g.GenerateToken(ctx, sessionID, userID)
	if err != nil {
		return "", "", err
	}
	return tokenValue, g.CookieValue(tokenValue), nil
}

// ValidateDoubleSubmit requires both a valid persisted token and a cookie
// value matching the HMAC of that token.
func (g *CsrfGuard) ValidateDoubleSubmit(ctx context.Context, tokenValue, cookieValue string, sessionID, userID *string) bool {
	if !g.ValidateToken(ctx, tokenValue, sessionID, userID) {
		obs.ObserveCSRFRejection()
		return false
	}
	want := g.CookieValue(tokenValue)
	if !hmac.Equal([]byte(want), []byte(strings.TrimSpace(cookieValue))) {
		obs.ObserveCSRFRejection()
		return false
	}
	return true
}

// RevokeSessionTokens deletes every token bound to the session.
func (g *CsrfGuard) RevokeSessionTokens(ctx context.Context, sessionID string) (int64, error) {
	return g.store.DeleteBySession(ctx, sessionID)
}

// RevokeUserTokens deletes every token bound to the user.
func (g *CsrfGuard) RevokeUserTokens(ctx context.Context, userID string) (int64, error) {
	return g.store.DeleteByUser(ctx, userID)
}

// CleanupExpired removes expired rows; idempotent under concurrent sweeps
// since deletion is keyed by expiry alone.
func (g *CsrfGuard) CleanupExpired(ctx context.Context) (int64, error) {
	return g.store.DeleteExpired(ctx, g.now().UTC())
}
