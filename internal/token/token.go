// Package token mints and verifies the signed access/refresh token pair.
// Access and refresh tokens are signed with independent secrets; a refresh
// token is never stored in plaintext; callers persist its sha256 digest.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "authcore"

const (
	// TypeAccess marks short-lived tokens accepted on API calls.
	TypeAccess = "access"
	// TypeRefresh marks long-lived tokens exchanged for a new pair.
	TypeRefresh = "refresh"
)

// ErrInvalidToken indicates the token failed signature or claim validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the verified claims shared by both token kinds.
type Claims struct {
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// SessionID returns the session correlation identifier embedded as jti.
func (c *Claims) SessionID() string { return c.ID }

// Issuer signs and verifies token pairs.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source (used by tests).
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. The two secrets must be non-empty and
// distinct; neither is derived from the other.
func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Issuer, error) {
	if strings.TrimSpace(accessSecret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, errors.New("token: both signing secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	iss := &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Pair bundles a freshly minted access/refresh token pair. SessionID is the
// jti shared by both tokens and correlates them to one session row.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssuePair mints both tokens with a shared fresh jti.
func (i *Issuer) IssuePair(userID, email string) (Pair, error) {
	jti := uuid.NewString()
	now := i.now().UTC()

	access, accessExp, err := i.sign(userID, email, jti, TypeAccess, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := i.sign(userID, email, jti, TypeRefresh, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        jti,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) sign(userID, email, jti, tokenType string, now time.Time) (string, time.Time, error) {
	secret := i.accessSecret
	ttl := i.accessTTL
	if tokenType == TypeRefresh {
		secret = i.refreshSecret
		ttl = i.refreshTTL
	}
	exp := now.Add(ttl)
	claims := Claims{
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, exp, nil
}

// VerifyAccess validates an access token and returns its claims.
func (i *Issuer) VerifyAccess(raw string) (*Claims, error) {
	return i.verify(raw, TypeAccess, i.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims. The caller
// still has to compare Digest(raw) against the stored digest before trusting
// it; a verified signature alone does not prove the token is current.
func (i *Issuer) VerifyRefresh(raw string) (*Claims, error) {
	return i.verify(raw, TypeRefresh, i.refreshSecret)
}

func (i *Issuer) verify(raw, wantType string, secret []byte) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Digest returns the hex sha256 of a token, the only form in which refresh
// tokens are ever persisted.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
