package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solumlabs/authcore/internal/notify"
	"github.com/solumlabs/authcore/internal/obs"
	"github.com/solumlabs/authcore/internal/password"
	"github.com/solumlabs/authcore/internal/totp"
)

const totpIssuerName = "authcore"

// Mfa manages TOTP enrollment and verification. A generated secret stays
// pending (MFA disabled) until the user proves possession with a valid
// code; disabling MFA is security-downgrading and re-proves identity with
// the current password rather than just an active session.
type Mfa struct {
	store    Store
	trail    *Trail
	notifier notify.Notifier
	now      func() time.Time
}

// NewMfa constructs the MFA service.
func NewMfa(store Store, trail *Trail, notifier notify.Notifier) *Mfa {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Mfa{store: store, trail: trail, notifier: notifier, now: time.Now}
}

// Enrollment is the payload handed to the user's authenticator app.
type Enrollment struct {
	Secret       string `json:"secret"`
	ProvisionURI string `json:"provision_uri"`
}

// GenerateSecret creates and stores an unconfirmed TOTP secret. MFA stays
// disabled until Enable verifies a code against it.
func (m *Mfa) GenerateSecret(ctx context.Context, userID string) (*Enrollment, error) {
	user, err := m.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, m.mapUserErr(err)
	}
	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := m.store.Users(ctx).SetPendingMFASecret(ctx, user.ID, secret); err != nil {
		return nil, err
	}
	m.trail.Record(ctx, AuditEntry{
		UserID: user.ID,
		Action: "mfa.secret_generated",
		Status: AuditOK,
	})
	return &Enrollment{
		Secret:       secret,
		ProvisionURI: totp.ProvisionURI(totpIssuerName, user.Email, secret),
	}, nil
}

// Enable verifies the submitted code against the pending secret and, on
// success, promotes it and turns MFA on. The confirmation notification is
// best-effort and never rolls back the state change.
func (m *Mfa) Enable(ctx context.Context, userID, code string) error {
	user, err := m.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return m.mapUserErr(err)
	}
	if user.MFAPendingSecret == nil {
		return fmt.Errorf("%w: no pending mfa enrollment", ErrInvalidInput)
	}
	ok, err := totp.Verify(*user.MFAPendingSecret, code, m.now())
	if err != nil {
		return err
	}
	if !ok {
		m.trail.Record(ctx, AuditEntry{
			UserID: user.ID,
			Action: "mfa.enable",
			Status: AuditDenied,
		})
		return ErrUnauthorized
	}
	if err := m.store.Users(ctx).PromoteMFASecret(ctx, user.ID); err != nil {
		return err
	}
	m.trail.Record(ctx, AuditEntry{
		UserID: user.ID,
		Action: "mfa.enable",
		Status: AuditOK,
	})
	m.alert(ctx, user.Email, "Two-factor authentication enabled")
	return nil
}

// Disable requires password re-verification before clearing the secret.
func (m *Mfa) Disable(ctx context.Context, userID, currentPassword string) error {
	user, err := m.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return m.mapUserErr(err)
	}
	ok, err := password.Verify(user.PasswordHash, currentPassword)
	if err != nil || !ok {
		m.trail.Record(ctx, AuditEntry{
			UserID: user.ID,
			Action: "mfa.disable",
			Status: AuditDenied,
		})
		return ErrUnauthorized
	}
	if err := m.store.Users(ctx).ClearMFA(ctx, user.ID); err != nil {
		return err
	}
	m.trail.Record(ctx, AuditEntry{
		UserID: user.ID,
		Action: "mfa.disable",
		Status: AuditOK,
	})
	m.alert(ctx, user.Email, "Two-factor authentication disabled")
	return nil
}

// VerifyLoginCode checks a login-challenge code against the confirmed
// secret.
func (m *Mfa) VerifyLoginCode(ctx context.Context, user *User, code string) (bool, error) {
	if user == nil || !user.MFAEnabled || user.MFASecret == nil {
		return false, nil
	}
	return totp.Verify(*user.MFASecret, code, m.now())
}

// Status reports the user's MFA state.
func (m *Mfa) Status(ctx context.Context, userID string) (enabled, pending bool, err error) {
	user, err := m.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return false, false, m.mapUserErr(err)
	}
	return user.MFAEnabled, user.MFAPendingSecret != nil, nil
}

func (m *Mfa) alert(ctx context.Context, email, subject string) {
	if err := m.notifier.SendSecurityAlert(ctx, email, subject); err != nil {
		obs.LogJSON(map[string]any{
			"level": "error",
			"msg":   "security alert delivery failed",
			"error": err.Error(),
		})
	}
}

func (m *Mfa) mapUserErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrUnauthorized
	}
	return err
}
