package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/auth/authtest"
	"github.com/solumlabs/authcore/internal/token"
	"github.com/solumlabs/authcore/internal/totp"
)

// captureNotifier records outgoing messages and can be told to fail.
type captureNotifier struct {
	resetCodes map[string]string
	alerts     []string
	failReset  bool
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{resetCodes: make(map[string]string)}
}

func (n *captureNotifier) SendResetCode(_ context.Context, email, code string) error {
	if n.failReset {
		return errors.New("smtp unavailable")
	}
	n.resetCodes[email] = code
	return nil
}

func (n *captureNotifier) SendSecurityAlert(_ context.Context, email, subject string) error {
	n.alerts = append(n.alerts, email+": "+subject)
	return nil
}

type fixture struct {
	store    *authtest.Store
	authn    *auth.Authenticator
	sessions *auth.Registry
	csrf     *auth.CsrfGuard
	mfa      *auth.Mfa
	notifier *captureNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := authtest.NewStore()
	trail := auth.NewTrail(store.Audit(context.Background()))
	notifier := newCaptureNotifier()

	issuer, err := token.NewIssuer("test-access-secret", "test-refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	sessions := auth.NewRegistry(store.Sessions(context.Background()), trail, 7*24*time.Hour)
	csrf, err := auth.NewCsrfGuard(store.CsrfTokens(context.Background()), "test-csrf-secret", 30*time.Minute)
	require.NoError(t, err)
	mfa := auth.NewMfa(store, trail, notifier)
	authn := auth.NewAuthenticator(store, issuer, sessions, csrf, mfa, trail, notifier, 10*time.Minute)

	return &fixture{store: store, authn: authn, sessions: sessions, csrf: csrf, mfa: mfa, notifier: notifier}
}

var testReq = auth.RequestContext{
	IPAddress: "203.0.113.7",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0",
}

func (f *fixture) signup(t *testing.T, email, pw string) *auth.Tokens {
	t.Helper()
	tokens, err := f.authn.Signup(context.Background(), email, pw, "", testReq)
	require.NoError(t, err)
	return tokens
}

func TestSignupAndSignin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tokens := f.signup(t, "alice@example.com", "s3cret-pass")
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.NotEmpty(t, tokens.SessionID)

	res, err := f.authn.Signin(ctx, "  Alice@Example.COM ", "s3cret-pass", testReq)
	require.NoError(t, err)
	require.False(t, res.RequiresMFA)
	require.NotNil(t, res.Tokens)

	assert.Contains(t, f.store.AuditActions(), "auth.signup")
	assert.Contains(t, f.store.AuditActions(), "auth.signin")
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.authn.Signup(ctx, "not-an-email", "long-enough-password", "", testReq)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = f.authn.Signup(ctx, "bob@example.com", "short", "", testReq)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	f.signup(t, "bob@example.com", "long-enough-password")
	_, err = f.authn.Signup(ctx, "bob@example.com", "long-enough-password", "", testReq)
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestSignupSurfacesStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith("users.create", errors.New("connection reset"))

	_, err := f.authn.Signup(context.Background(), "pat@example.com", "long-enough-password", "", testReq)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrUnauthorized)
}

func TestSigninFailuresAreGeneric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "carol@example.com", "correct-password")

	_, err := f.authn.Signin(ctx, "carol@example.com", "wrong-password", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = f.authn.Signin(ctx, "nobody@example.com", "whatever", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = f.authn.Signin(ctx, "", "", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestSigninRejectsInactiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "dave@example.com", "correct-password")

	user, err := f.authn.FindUser(ctx, mustSubject(t, f, tokens))
	require.NoError(t, err)
	setStatus(t, f.store, user.ID, auth.UserStatusInactive)

	_, err = f.authn.Signin(ctx, "dave@example.com", "correct-password", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestMFALoginChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "erin@example.com", "correct-password")

	user, err := f.store.Users(ctx).FindByEmail(ctx, "erin@example.com")
	require.NoError(t, err)

	enrollment, err := f.mfa.GenerateSecret(ctx, user.ID)
	require.NoError(t, err)
	code, err := totp.CodeAt(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.mfa.Enable(ctx, user.ID, code))

	res, err := f.authn.Signin(ctx, "erin@example.com", "correct-password", testReq)
	require.NoError(t, err)
	require.True(t, res.RequiresMFA)
	require.Nil(t, res.Tokens)

	_, err = f.authn.VerifyLoginMFA(ctx, "erin@example.com", "000000", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	code, err = totp.CodeAt(enrollment.Secret, time.Now())
	require.NoError(t, err)
	tokens, err := f.authn.VerifyLoginMFA(ctx, "erin@example.com", code, testReq)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "frank@example.com", "correct-password")

	rotated, err := f.authn.Refresh(ctx, tokens.RefreshToken, testReq)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	require.Equal(t, tokens.SessionID, rotated.SessionID)

	// Replaying the rotated-away token must fail and leave a trace.
	_, err = f.authn.Refresh(ctx, tokens.RefreshToken, testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Contains(t, f.store.AuditActions(), "auth.refresh.reuse_detected")

	// The new token still works.
	_, err = f.authn.Refresh(ctx, rotated.RefreshToken, testReq)
	require.NoError(t, err)
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.authn.Refresh(context.Background(), "not-a-token", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestRefreshAgainstRevokedSessionKeepsDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "oscar@example.com", "correct-password")
	userID := mustSubject(t, f, tokens)

	revoked, err := f.sessions.Revoke(ctx, tokens.SessionID, userID)
	require.NoError(t, err)
	require.True(t, revoked)

	_, err = f.authn.Refresh(ctx, tokens.RefreshToken, testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	// The stored digest must not rotate on a denied refresh, or the user
	// would be locked out of the token they still hold.
	user, err := f.store.Users(ctx).Find(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, user.RefreshTokenHash)
	assert.Equal(t, token.Digest(tokens.RefreshToken), *user.RefreshTokenHash)
}

func TestLogoutInvalidatesRefreshAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "grace@example.com", "correct-password")

	userID := mustSubject(t, f, tokens)
	require.NoError(t, f.authn.Logout(ctx, userID, tokens.SessionID, testReq))

	_, err := f.authn.Refresh(ctx, tokens.RefreshToken, testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	sessions, err := f.sessions.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "heidi@example.com", "old-password-123")

	require.NoError(t, f.authn.ForgotPassword(ctx, "heidi@example.com", testReq))
	code := f.notifier.resetCodes["heidi@example.com"]
	require.Len(t, code, 6)

	// Reset before verification must be refused.
	err := f.authn.ResetPassword(ctx, "heidi@example.com", "new-password-456", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	require.NoError(t, f.authn.VerifyOtp(ctx, "heidi@example.com", code, testReq))
	require.NoError(t, f.authn.ResetPassword(ctx, "heidi@example.com", "new-password-456", testReq))

	// The verified OTP authorizes exactly one reset.
	err = f.authn.ResetPassword(ctx, "heidi@example.com", "another-password", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = f.authn.Signin(ctx, "heidi@example.com", "old-password-123", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	res, err := f.authn.Signin(ctx, "heidi@example.com", "new-password-456", testReq)
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.authn.ForgotPassword(context.Background(), "ghost@example.com", testReq))
	assert.Empty(t, f.notifier.resetCodes)
}

func TestForgotPasswordDeliveryFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "ivan@example.com", "correct-password")

	f.notifier.failReset = true
	err := f.authn.ForgotPassword(ctx, "ivan@example.com", testReq)
	assert.ErrorIs(t, err, auth.ErrNotificationFailed)

	// The rolled-back OTP must not be verifiable, whatever the code.
	f.notifier.failReset = false
	err = f.authn.VerifyOtp(ctx, "ivan@example.com", "123456", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestVerifyOtpRejectsWrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "judy@example.com", "correct-password")

	require.NoError(t, f.authn.ForgotPassword(ctx, "judy@example.com", testReq))
	err := f.authn.VerifyOtp(ctx, "judy@example.com", "000000", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "kim@example.com", "old-password-123")
	userID := mustSubject(t, f, tokens)

	err := f.authn.ChangePassword(ctx, userID, "wrong-current", "new-password-456", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	require.NoError(t, f.authn.ChangePassword(ctx, userID, "old-password-123", "new-password-456", testReq))
	res, err := f.authn.Signin(ctx, "kim@example.com", "new-password-456", testReq)
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
}

func TestDeleteOwnAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "leo@example.com", "correct-password")
	userID := mustSubject(t, f, tokens)

	err := f.authn.DeleteOwnAccount(ctx, userID, "wrong-password", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	require.NoError(t, f.authn.DeleteOwnAccount(ctx, userID, "correct-password", testReq))
	_, err = f.authn.Signin(ctx, "leo@example.com", "correct-password", testReq)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestMultiDeviceSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "mallory@example.com", "correct-password")

	phone := auth.RequestContext{
		IPAddress: "198.51.100.9",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Safari/604.1 Mobile/15E148",
	}
	res, err := f.authn.Signin(ctx, "mallory@example.com", "correct-password", phone)
	require.NoError(t, err)

	userID := mustSubject(t, f, res.Tokens)
	sessions, err := f.sessions.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// The most recent login is the current session.
	var currentCount int
	for _, s := range sessions {
		if s.IsCurrent {
			currentCount++
			assert.Equal(t, res.Tokens.SessionID, s.ID)
		}
	}
	assert.Equal(t, 1, currentCount)

	n, err := f.sessions.RevokeOthers(ctx, userID, res.Tokens.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sessions, err = f.sessions.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "nina@example.com", "correct-password")
	userID := mustSubject(t, f, tokens)

	revoked, err := f.sessions.Revoke(ctx, tokens.SessionID, userID)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = f.sessions.Revoke(ctx, tokens.SessionID, userID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestAuthenticateBearer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := f.signup(t, "oscar@example.com", "correct-password")

	principal, err := f.authn.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "oscar@example.com", principal.User.Email)
	require.NotNil(t, principal.Session)
	assert.Equal(t, tokens.SessionID, principal.Session.ID)

	_, err = f.authn.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	// A revoked session kills the access token even before expiry.
	_, err = f.sessions.Revoke(ctx, tokens.SessionID, principal.User.ID)
	require.NoError(t, err)
	_, err = f.authn.Authenticate(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

// mustSubject resolves the user id behind a token pair via Authenticate.
func mustSubject(t *testing.T, f *fixture, tokens *auth.Tokens) string {
	t.Helper()
	principal, err := f.authn.Authenticate(context.Background(), tokens.AccessToken)
	require.NoError(t, err)
	return principal.User.ID
}

// setStatus flips a user's status directly in the fake store.
func setStatus(t *testing.T, store *authtest.Store, userID, status string) {
	t.Helper()
	require.NoError(t, store.SetUserStatus(userID, status))
}
