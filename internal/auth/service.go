package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/solumlabs/authcore/internal/ids"
	"github.com/solumlabs/authcore/internal/notify"
	"github.com/solumlabs/authcore/internal/obs"
	"github.com/solumlabs/authcore/internal/password"
	"github.com/solumlabs/authcore/internal/token"
)

const otpDigits = 6

// Authenticator orchestrates every credential and token flow: signin,
// signup, refresh rotation, logout, the password-reset OTP phases and the
// MFA login challenge. It is the only component allowed to mutate session
// and credential state.
type Authenticator struct {
	store    Store
	issuer   *token.Issuer
	sessions *Registry
	csrf     *CsrfGuard
	mfa      *Mfa
	trail    *Trail
	notifier notify.Notifier
	otpTTL   time.Duration
	now      func() time.Time
}

// NewAuthenticator wires the orchestrator to its collaborators.
func NewAuthenticator(
	store Store,
	issuer *token.Issuer,
	sessions *Registry,
	csrf *CsrfGuard,
	mfa *Mfa,
	trail *Trail,
	notifier notify.Notifier,
	otpTTL time.Duration,
) *Authenticator {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if otpTTL <= 0 {
		otpTTL = 10 * time.Minute
	}
	return &Authenticator{
		store:    store,
		issuer:   issuer,
		sessions: sessions,
		csrf:     csrf,
		mfa:      mfa,
		trail:    trail,
		notifier: notifier,
		otpTTL:   otpTTL,
		now:      time.Now,
	}
}

// Tokens is the client-facing result of a completed authentication.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"-"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"-"`
}

// SigninResult is either an issued token pair or an MFA challenge.
type SigninResult struct {
	RequiresMFA bool    `json:"requires_mfa"`
	UserID      string  `json:"user_id,omitempty"`
	Email       string  `json:"email,omitempty"`
	Tokens      *Tokens `json:"tokens,omitempty"`
}

// Signin verifies credentials and either issues tokens with a fresh session
// or returns an MFA challenge. Every branch lands in the audit trail; the
// caller only ever sees a generic unauthorized error.
func (a *Authenticator) Signin(ctx context.Context, email, plaintext string, req RequestContext) (*SigninResult, error) {
	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		return nil, ErrUnauthorized
	}
	user, err := a.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.auditDenied(ctx, "", "auth.signin", "unknown_email", req)
			obs.ObserveLogin("denied")
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Status != UserStatusActive {
		a.auditDenied(ctx, user.ID, "auth.signin", "inactive_account", req)
		obs.ObserveLogin("denied")
		return nil, ErrUnauthorized
	}
	ok, err := password.Verify(user.PasswordHash, plaintext)
	if err != nil || !ok {
		a.auditDenied(ctx, user.ID, "auth.signin", "wrong_password", req)
		obs.ObserveLogin("denied")
		return nil, ErrUnauthorized
	}
	if user.MFAEnabled {
		a.trail.Record(ctx, AuditEntry{
			UserID:    user.ID,
			Action:    "auth.signin",
			Status:    AuditOK,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Details:   map[string]string{"branch": "mfa_challenge"},
		})
		obs.ObserveLogin("mfa_required")
		return &SigninResult{RequiresMFA: true, UserID: user.ID, Email: user.Email}, nil
	}

	tokens, err := a.establish(ctx, user, req)
	if err != nil {
		return nil, err
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.signin",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	obs.ObserveLogin("ok")
	return &SigninResult{Tokens: tokens}, nil
}

// VerifyLoginMFA completes a pending MFA challenge: a correct TOTP code is
// the only path from challenge to tokens.
func (a *Authenticator) VerifyLoginMFA(ctx context.Context, email, code string, req RequestContext) (*Tokens, error) {
	email = normalizeEmail(email)
	user, err := a.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.auditDenied(ctx, "", "auth.signin_mfa", "unknown_email", req)
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Status != UserStatusActive || !user.MFAEnabled {
		a.auditDenied(ctx, user.ID, "auth.signin_mfa", "not_eligible", req)
		return nil, ErrUnauthorized
	}
	ok, err := a.mfa.VerifyLoginCode(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.auditDenied(ctx, user.ID, "auth.signin_mfa", "invalid_code", req)
		obs.ObserveLogin("denied")
		return nil, ErrUnauthorized
	}
	tokens, err := a.establish(ctx, user, req)
	if err != nil {
		return nil, err
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.signin_mfa",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	obs.ObserveLogin("ok")
	return tokens, nil
}

// Signup registers a user, resolving the role lazily by name, and signs the
// new account in. A duplicate email surfaces as a conflict.
func (a *Authenticator) Signup(ctx context.Context, email, plaintext, roleName string, req RequestContext) (*Tokens, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(plaintext) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if strings.TrimSpace(roleName) == "" {
		roleName = DefaultRole
	}
	role, err := a.store.Roles(ctx).EnsureByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	hash, err := password.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Status:       UserStatusActive,
		RoleID:       role.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.Users(ctx).Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}
	tokens, err := a.establish(ctx, user, req)
	if err != nil {
		return nil, err
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.signup",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Details:   map[string]string{"role": role.Name},
	})
	return tokens, nil
}

// Refresh rotates a refresh token. The presented token must carry a valid
// signature and its digest must equal the single stored digest; the digest
// swap is a compare-and-swap so concurrent refreshes resolve to one winner.
// Reuse of a rotated-away token is surfaced to the audit trail rather than
// silently dropped.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string, req RequestContext) (*Tokens, error) {
	claims, err := a.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		obs.ObserveRefresh("denied")
		return nil, ErrUnauthorized
	}
	user, err := a.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveRefresh("denied")
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Status != UserStatusActive {
		a.auditDenied(ctx, user.ID, "auth.refresh", "inactive_account", req)
		obs.ObserveRefresh("denied")
		return nil, ErrUnauthorized
	}

	presented := token.Digest(refreshToken)
	if user.RefreshTokenHash == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshTokenHash), []byte(presented)) != 1 {
		// Signature was valid but the digest no longer matches: this is a
		// rotated-away token being replayed.
		a.trail.Record(ctx, AuditEntry{
			UserID:    user.ID,
			Action:    "auth.refresh.reuse_detected",
			Status:    AuditDenied,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Details:   map[string]string{"session_id": claims.SessionID()},
		})
		obs.ObserveRefresh("reuse")
		return nil, ErrUnauthorized
	}

	// Check the session before rotating the digest. Rotating first would
	// strand the stored digest on a token the client never receives when
	// the session turns out to be revoked.
	if _, err := a.sessions.FindActive(ctx, claims.SessionID()); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			a.auditDenied(ctx, user.ID, "auth.refresh", "session_invalid", req)
			obs.ObserveRefresh("denied")
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	pair, err := a.issuer.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	swapped, err := a.store.Users(ctx).SwapRefreshDigest(ctx, user.ID, presented, token.Digest(pair.RefreshToken))
	if err != nil {
		return nil, err
	}
	if !swapped {
		// A concurrent refresh won the race; this call loses.
		a.auditDenied(ctx, user.ID, "auth.refresh", "rotation_race_lost", req)
		obs.ObserveRefresh("denied")
		return nil, ErrUnauthorized
	}

	sess, err := a.sessions.Validate(ctx, claims.SessionID(), req)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			a.auditDenied(ctx, user.ID, "auth.refresh", "session_invalid", req)
			obs.ObserveRefresh("denied")
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := a.sessions.RotateToken(ctx, sess.ID, pair.SessionID); err != nil {
		return nil, err
	}

	// Advisory only; a mismatch is recorded, never blocked on.
	a.sessions.DetectSuspicious(ctx, sess, req)

	obs.ObserveRefresh("ok")
	return &Tokens{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		SessionID:        sess.ID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// Logout clears the refresh digest, deactivates the session and drops its
// CSRF tokens. The caller clears the refresh cookie.
func (a *Authenticator) Logout(ctx context.Context, userID, sessionID string, req RequestContext) error {
	if err := a.store.Users(ctx).SetRefreshDigest(ctx, userID, nil); err != nil {
		return err
	}
	if sessionID != "" {
		if _, err := a.sessions.Revoke(ctx, sessionID, userID); err != nil {
			return err
		}
		if _, err := a.csrf.RevokeSessionTokens(ctx, sessionID); err != nil {
			obs.LogJSON(map[string]any{
				"level": "error",
				"msg":   "csrf revoke on logout failed",
				"error": err.Error(),
			})
		}
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:     userID,
		Action:     "auth.logout",
		Status:     AuditOK,
		ResourceID: sessionID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	})
	return nil
}

// ForgotPassword starts the three-phase reset flow. The response is
// identical whether or not the email exists; only delivery failure of the
// code surfaces, after rolling back the freshly created OTP.
func (a *Authenticator) ForgotPassword(ctx context.Context, email string, req RequestContext) error {
	email = normalizeEmail(email)
	user, err := a.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.auditDenied(ctx, "", "auth.forgot_password", "unknown_email", req)
			return nil
		}
		return err
	}

	code, err := generateOtpCode()
	if err != nil {
		return err
	}
	now := a.now().UTC()
	otp := &Otp{
		ID:        ids.New(),
		UserID:    user.ID,
		CodeHash:  hashOtpCode(code),
		Type:      OtpTypePasswordReset,
		ExpiresAt: now.Add(a.otpTTL),
		CreatedAt: now,
	}
	if err := a.store.Otps(ctx).Create(ctx, otp); err != nil {
		return err
	}
	// The email is the delivery mechanism for the secret itself: failure
	// rolls back the OTP and surfaces a retryable error.
	if err := a.notifier.SendResetCode(ctx, user.Email, code); err != nil {
		if delErr := a.store.Otps(ctx).Delete(ctx, otp.ID); delErr != nil {
			obs.LogJSON(map[string]any{
				"level": "error",
				"msg":   "otp rollback failed",
				"error": delErr.Error(),
			})
		}
		a.trail.Record(ctx, AuditEntry{
			UserID:    user.ID,
			Action:    "auth.forgot_password",
			Status:    AuditError,
			IPAddress: req.IPAddress,
			Details:   map[string]string{"reason": "delivery_failed"},
		})
		return ErrNotificationFailed
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.forgot_password",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	return nil
}

// VerifyOtp moves a pending code into the verified phase.
func (a *Authenticator) VerifyOtp(ctx context.Context, email, code string, req RequestContext) error {
	email = normalizeEmail(email)
	user, err := a.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.auditDenied(ctx, "", "auth.verify_otp", "unknown_email", req)
			return ErrUnauthorized
		}
		return err
	}
	otp, err := a.store.Otps(ctx).FindPending(ctx, user.ID, OtpTypePasswordReset)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.auditDenied(ctx, user.ID, "auth.verify_otp", "no_pending_code", req)
			return ErrUnauthorized
		}
		return err
	}
	if subtle.ConstantTimeCompare([]byte(otp.CodeHash), []byte(hashOtpCode(code))) != 1 {
		a.auditDenied(ctx, user.ID, "auth.verify_otp", "wrong_code", req)
		return ErrUnauthorized
	}
	if err := a.store.Otps(ctx).MarkUsed(ctx, otp.ID); err != nil {
		return err
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.verify_otp",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	return nil
}

// ResetPassword completes the flow: a used-and-unexpired OTP authorizes
// exactly one reset, after which every refresh token is invalidated and all
// of the user's OTPs are purged.
func (a *Authenticator) ResetPassword(ctx context.Context, email, newPassword string, req RequestContext) error {
	email = normalizeEmail(email)
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	user, err := a.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.auditDenied(ctx, "", "auth.reset_password", "unknown_email", req)
			return ErrUnauthorized
		}
		return err
	}
	if _, err := a.store.Otps(ctx).FindVerified(ctx, user.ID, OtpTypePasswordReset); err != nil {
		if errors.Is(err, ErrNotFound) {
			a.auditDenied(ctx, user.ID, "auth.reset_password", "no_verified_code", req)
			return ErrUnauthorized
		}
		return err
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := a.store.Users(ctx).UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := a.store.Users(ctx).SetRefreshDigest(ctx, user.ID, nil); err != nil {
		return err
	}
	if _, err := a.store.Otps(ctx).DeleteByUser(ctx, user.ID); err != nil {
		return err
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.reset_password",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	a.alert(ctx, user.Email, "Your password was reset")
	return nil
}

// ChangePassword requires current-password re-verification and invalidates
// every refresh token, forcing re-login on other devices.
func (a *Authenticator) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, req RequestContext) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	user, err := a.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	ok, err := password.Verify(user.PasswordHash, currentPassword)
	if err != nil || !ok {
		a.auditDenied(ctx, user.ID, "auth.change_password", "wrong_password", req)
		return ErrUnauthorized
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := a.store.Users(ctx).UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := a.store.Users(ctx).SetRefreshDigest(ctx, user.ID, nil); err != nil {
		return err
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.change_password",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	a.alert(ctx, user.Email, "Your password was changed")
	return nil
}

// DeleteOwnAccount re-verifies the password before the irreversible delete;
// sessions, CSRF tokens and OTPs cascade with the user row.
func (a *Authenticator) DeleteOwnAccount(ctx context.Context, userID, plaintext string, req RequestContext) error {
	user, err := a.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	ok, err := password.Verify(user.PasswordHash, plaintext)
	if err != nil || !ok {
		a.auditDenied(ctx, user.ID, "auth.delete_account", "wrong_password", req)
		return ErrUnauthorized
	}
	if err := a.store.Users(ctx).Delete(ctx, user.ID); err != nil {
		return err
	}
	a.trail.Record(ctx, AuditEntry{
		UserID:    user.ID,
		Action:    "auth.delete_account",
		Status:    AuditOK,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	return nil
}

// Authenticate proves a bearer access token and returns the caller's
// principal. The token must verify, its user must exist and be active, and
// the session correlated to its jti must still be live; any miss collapses
// to the generic unauthorized error.
func (a *Authenticator) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := a.issuer.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := a.FindUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user.Status != UserStatusActive {
		return nil, ErrUnauthorized
	}
	sess, err := a.sessions.FindActive(ctx, claims.SessionID())
	if err != nil {
		return nil, err
	}
	ability, err := a.Ability(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Principal{User: user, Ability: ability, Session: sess}, nil
}

// Sessions exposes the session registry for callers that operate on the
// authenticated principal's devices.
func (a *Authenticator) Sessions() *Registry {
	return a.sessions
}

// Ability builds the caller's capability set from its role's grants.
func (a *Authenticator) Ability(ctx context.Context, user *User) (*Ability, error) {
	perms, err := a.store.Permissions(ctx).ForRole(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	return BuildAbility(perms), nil
}

// FindUser resolves a user by id, mapping missing rows to unauthorized.
func (a *Authenticator) FindUser(ctx context.Context, userID string) (*User, error) {
	user, err := a.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// CleanupExpiredOtps removes expired one-time codes.
func (a *Authenticator) CleanupExpiredOtps(ctx context.Context) (int64, error) {
	return a.store.Otps(ctx).DeleteExpired(ctx, a.now().UTC())
}

// establish mints a token pair, pins its refresh digest on the user row and
// opens the session that correlates to the pair's jti.
func (a *Authenticator) establish(ctx context.Context, user *User, req RequestContext) (*Tokens, error) {
	pair, err := a.issuer.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	digest := token.Digest(pair.RefreshToken)
	if err := a.store.Users(ctx).SetRefreshDigest(ctx, user.ID, &digest); err != nil {
		return nil, err
	}
	sess, err := a.sessions.Create(ctx, user.ID, pair.SessionID, req)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		SessionID:        sess.ID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

func (a *Authenticator) auditDenied(ctx context.Context, userID, action, reason string, req RequestContext) {
	a.trail.Record(ctx, AuditEntry{
		UserID:    userID,
		Action:    action,
		Status:    AuditDenied,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Details:   map[string]string{"reason": reason},
	})
}

func (a *Authenticator) alert(ctx context.Context, email, subject string) {
	if err := a.notifier.SendSecurityAlert(ctx, email, subject); err != nil {
		obs.LogJSON(map[string]any{
			"level": "error",
			"msg":   "security alert delivery failed",
			"error": err.Error(),
		})
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func generateOtpCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}

func hashOtpCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}
