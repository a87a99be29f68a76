package auth

import "time"

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// DefaultRole is assigned when signup does not name a role.
const DefaultRole = "USER"

// User is an identity able to authenticate against the service.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Status       string `json:"status"`
	RoleID       string `json:"role_id"`
	// MFASecret is the confirmed TOTP secret; MFAPendingSecret holds an
	// enrollment secret that has not been verified yet.
	MFASecret         *string    `json:"-"`
	MFAPendingSecret  *string    `json:"-"`
	MFAEnabled        bool       `json:"mfa_enabled"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	// RefreshTokenHash is the sha256 digest of the single currently valid
	// refresh token, or nil when the user holds none.
	RefreshTokenHash *string   `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role groups permission grants.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is a (resource, action) capability. Either field may hold the
// wildcard "*"; the action "manage" implies every action on its resource.
type Permission struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// DeviceInfo is the coarse device classification derived from the
// User-Agent header at session creation.
type DeviceInfo struct {
	Browser  string `json:"browser"`
	OS       string `json:"os"`
	Device   string `json:"device"`
	Platform string `json:"platform"`
}

// Session is one authenticated device/login. TokenID correlates the row to
// the jti embedded in the access/refresh pair issued for it.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenID   string     `json:"-"`
	Device    DeviceInfo `json:"device"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
	IsActive  bool       `json:"is_active"`
	IsCurrent bool       `json:"is_current"`
	LastUsed  time.Time  `json:"last_used"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Signature groups sessions that belong to the same physical device for
// display-level deduplication.
func (s *Session) Signature() string {
	return s.Device.Browser + "|" + s.Device.OS + "|" + s.IPAddress
}

// Session activity kinds.
const (
	ActivityLogin      = "LOGIN"
	ActivityRefresh    = "REFRESH"
	ActivityLogout     = "LOGOUT"
	ActivitySuspicious = "SUSPICIOUS_ACTIVITY"
)

// SessionActivity is one append-only event on a session.
type SessionActivity struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Activity  string    `json:"activity"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CsrfToken is a persisted anti-forgery token, optionally bound to a
// session and/or user. Rows are created and deleted, never updated.
type CsrfToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	SessionID *string   `json:"session_id,omitempty"`
	UserID    *string   `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// OTP kinds.
const OtpTypePasswordReset = "PASSWORD_RESET"

// Otp is a hashed one-time code. It moves through two phases: created
// unused, marked used on verification; a used-and-unexpired row authorizes
// exactly one password reset.
type Otp struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CodeHash  string    `json:"-"`
	Type      string    `json:"type"`
	IsUsed    bool      `json:"is_used"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry is one immutable security-event record.
type AuditEntry struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id,omitempty"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource,omitempty"`
	ResourceID string            `json:"resource_id,omitempty"`
	Status     string            `json:"status"`
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Audit statuses.
const (
	AuditOK     = "success"
	AuditDenied = "denied"
	AuditError  = "error"
)

// RequestContext carries the per-request network identity used for session
// tracking and audit entries.
type RequestContext struct {
	IPAddress string
	UserAgent string
}
