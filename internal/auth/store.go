package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the trust core.
// Implementations back every cross-request invariant with the database's
// transactional guarantees; no in-process state is shared between requests.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Sessions(ctx context.Context) SessionStore
	CsrfTokens(ctx context.Context) CsrfTokenStore
	Otps(ctx context.Context) OtpStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages user rows.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// UpdatePassword replaces the digest and stamps password_changed_at.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// SetRefreshDigest unconditionally replaces the stored refresh-token
	// digest; nil clears it and invalidates every outstanding refresh token.
	SetRefreshDigest(ctx context.Context, userID string, digest *string) error
	// SwapRefreshDigest performs a compare-and-swap on the digest and
	// reports whether the swap took effect. Two concurrent rotations with
	// the same old digest resolve to exactly one winner.
	SwapRefreshDigest(ctx context.Context, userID, oldDigest, newDigest string) (bool, error)
	// SetPendingMFASecret stores an unconfirmed enrollment secret without
	// touching mfa_enabled.
	SetPendingMFASecret(ctx context.Context, userID, secret string) error
	// PromoteMFASecret moves the pending secret into place and flips
	// mfa_enabled on.
	PromoteMFASecret(ctx context.Context, userID string) error
	// ClearMFA removes both secrets and disables MFA.
	ClearMFA(ctx context.Context, userID string) error
	// Delete removes the user; sessions, csrf tokens and otps cascade.
	Delete(ctx context.Context, userID string) error
}

// RoleStore manages roles, creating them lazily by name.
type RoleStore interface {
	Find(ctx context.Context, id string) (*Role, error)
	// EnsureByName returns the named role, creating it when absent.
	EnsureByName(ctx context.Context, name string) (*Role, error)
}

// PermissionStore manages the permission catalog and role grants.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	All(ctx context.Context) ([]Permission, error)
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
	SetForRole(ctx context.Context, roleID string, permissionIDs []string) error
}

// SessionStore manages session rows and their activity log.
type SessionStore interface {
	// Create inserts the session as active and current. The implementation
	// marks every other active session of the user not-current in the same
	// transaction so the at-most-one-current invariant cannot interleave
	// with a concurrent login.
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	FindByTokenID(ctx context.Context, tokenID string) (*Session, error)
	// UpdateTokenID re-correlates the session to the jti of a freshly
	// rotated token pair.
	UpdateTokenID(ctx context.Context, sessionID, tokenID string) error
	Touch(ctx context.Context, sessionID string, when time.Time) error
	ListActive(ctx context.Context, userID string) ([]*Session, error)
	// Deactivate flips is_active off and reports whether a row changed;
	// an already-inactive session reports false.
	Deactivate(ctx context.Context, sessionID, userID string) (bool, error)
	DeactivateOthers(ctx context.Context, userID, keepSessionID string) (int64, error)
	DeactivateAll(ctx context.Context, userID string) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	AppendActivity(ctx context.Context, a *SessionActivity) error
}

// CsrfTokenStore manages anti-forgery token rows. Rows are inserted and
// deleted, never updated in place.
type CsrfTokenStore interface {
	Create(ctx context.Context, t *CsrfToken) error
	Find(ctx context.Context, tokenValue string) (*CsrfToken, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// OtpStore manages one-time code rows.
type OtpStore interface {
	Create(ctx context.Context, o *Otp) error
	// FindPending returns the most recent unused, unexpired code of the
	// given type.
	FindPending(ctx context.Context, userID, otpType string) (*Otp, error)
	// FindVerified returns the most recent used-but-unexpired code, the
	// record that authorizes one password reset.
	FindVerified(ctx context.Context, userID, otpType string) (*Otp, error)
	MarkUsed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
