// Package notify delivers security notifications to users. Delivery is
// best-effort everywhere except password-reset codes, where the message is
// the only channel carrying the secret and failure must surface.
package notify

import (
	"context"

	"github.com/solumlabs/authcore/internal/obs"
)

// Notifier sends a message to a user's registered email address.
type Notifier interface {
	// SendResetCode delivers a password-reset code. An error here aborts
	// the reset flow and rolls back the pending OTP.
	SendResetCode(ctx context.Context, email, code string) error
	// SendSecurityAlert announces a security-relevant change (MFA toggled,
	// password changed, new device login). Errors are logged and dropped.
	SendSecurityAlert(ctx context.Context, email, subject string) error
}

// LogNotifier writes notifications to the service log instead of a mail
// relay. Used in development and as the default when no SMTP relay is
// configured.
type LogNotifier struct{}

func (LogNotifier) SendResetCode(_ context.Context, email, _ string) error {
	obs.LogJSON(map[string]any{
		"level": "info",
		"msg":   "notify.reset_code",
		"email": email,
	})
	return nil
}

func (LogNotifier) SendSecurityAlert(_ context.Context, email, subject string) error {
	obs.LogJSON(map[string]any{
		"level":   "info",
		"msg":     "notify.security_alert",
		"email":   email,
		"subject": subject,
	})
	return nil
}
