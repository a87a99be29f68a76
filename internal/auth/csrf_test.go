package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/auth/authtest"
)

func newGuard(t *testing.T, ttl time.Duration) (*auth.CsrfGuard, *authtest.Store) {
	t.Helper()
	store := authtest.NewStore()
	guard, err := auth.NewCsrfGuard(store.CsrfTokens(context.Background()), "csrf-test-secret", ttl)
	require.NoError(t, err)
	return guard, store
}

func TestCsrfGuardRequiresSecret(t *testing.T) {
	store := authtest.NewStore()
	_, err := auth.NewCsrfGuard(store.CsrfTokens(context.Background()), "  ", time.Minute)
	assert.Error(t, err)
}

func TestDoubleSubmitRoundTrip(t *testing.T) {
	guard, _ := newGuard(t, 30*time.Minute)
	ctx := context.Background()

	tok, cookie, err := guard.CreateDoubleSubmit(ctx, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	require.NotEqual(t, tok, cookie)

	assert.True(t, guard.ValidateDoubleSubmit(ctx, tok, cookie, nil, nil))
}

func TestDoubleSubmitRejectsMismatchedCookie(t *testing.T) {
	guard, _ := newGuard(t, 30*time.Minute)
	ctx := context.Background()

	tok, _, err := guard.CreateDoubleSubmit(ctx, nil, nil)
	require.NoError(t, err)
	other, otherCookie, err := guard.CreateDoubleSubmit(ctx, nil, nil)
	require.NoError(t, err)

	// Header token with the wrong cookie, and vice versa.
	assert.False(t, guard.ValidateDoubleSubmit(ctx, tok, otherCookie, nil, nil))
	assert.False(t, guard.ValidateDoubleSubmit(ctx, other, "", nil, nil))
	assert.False(t, guard.ValidateDoubleSubmit(ctx, tok, "deadbeef", nil, nil))
}

func TestValidateTokenRejectsUnknownAndExpired(t *testing.T) {
	guard, _ := newGuard(t, time.Millisecond)
	ctx := context.Background()

	assert.False(t, guard.ValidateToken(ctx, "never-issued", nil, nil))
	assert.False(t, guard.ValidateToken(ctx, "", nil, nil))

	tok, err := guard.GenerateToken(ctx, nil, nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, guard.ValidateToken(ctx, tok, nil, nil))
}

func TestValidateTokenBinding(t *testing.T) {
	guard, _ := newGuard(t, 30*time.Minute)
	ctx := context.Background()

	sessionA, sessionB := "sess-a", "sess-b"
	userA, userB := "user-a", "user-b"

	tok, err := guard.GenerateToken(ctx, &sessionA, &userA)
	require.NoError(t, err)

	assert.True(t, guard.ValidateToken(ctx, tok, &sessionA, &userA))
	// Missing caller context still passes; the binding only binds when both
	// sides supply a value.
	assert.True(t, guard.ValidateToken(ctx, tok, nil, nil))
	assert.False(t, guard.ValidateToken(ctx, tok, &sessionB, &userA))
	assert.False(t, guard.ValidateToken(ctx, tok, &sessionA, &userB))
}

func TestRevokeTokens(t *testing.T) {
	guard, _ := newGuard(t, 30*time.Minute)
	ctx := context.Background()

	sess := "sess-1"
	user := "user-1"
	tokSess, err := guard.GenerateToken(ctx, &sess, nil)
	require.NoError(t, err)
	tokUser, err := guard.GenerateToken(ctx, nil, &user)
	require.NoError(t, err)

	n, err := guard.RevokeSessionTokens(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, guard.ValidateToken(ctx, tokSess, nil, nil))
	assert.True(t, guard.ValidateToken(ctx, tokUser, nil, nil))

	n, err = guard.RevokeUserTokens(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, guard.ValidateToken(ctx, tokUser, nil, nil))
}

func TestCleanupExpired(t *testing.T) {
	guard, _ := newGuard(t, time.Millisecond)
	ctx := context.Background()

	_, err := guard.GenerateToken(ctx, nil, nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	n, err := guard.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
