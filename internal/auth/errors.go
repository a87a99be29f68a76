package auth

import "errors"

// Failure taxonomy. Authentication failures stay generic on the wire so a
// caller can never learn which factor failed; the specific branch is
// recorded in the audit trail instead.
var (
	// ErrUnauthorized covers bad credentials, invalid or expired tokens,
	// inactive accounts and failed MFA codes.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden covers permission and ownership denials.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput covers malformed requests; messages may carry field
	// detail since no secret is at risk.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict covers duplicate email, role or permission rows.
	ErrConflict = errors.New("resource conflict")
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrNotificationFailed signals that delivering a security-critical
	// message failed and the operation was rolled back; retryable.
	ErrNotificationFailed = errors.New("notification delivery failed")
)
