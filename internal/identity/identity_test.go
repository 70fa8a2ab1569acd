package identity_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/identity"
	"relay/internal/relayerr"
	"relay/internal/store/memkv"
)

func newTestService(t *testing.T) *identity.Service {
	t.Helper()
	kv := memkv.New()
	s := identity.NewStore(kv)
	jwtSvc := identity.NewJWTService("test-secret", 7*24*time.Hour)
	hasher := identity.NewPasswordHasher(4) // NewPasswordHasher raises any cost below 12 to 12
	rl := identity.NewLoginRateLimiter(kv, 5, 15*time.Minute)

	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("uid-%d", counter)
	}
	return identity.NewService(s, jwtSvc, hasher, rl, newID)
}

func TestGenerateCodeIsIdempotentWhilePending(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	first, err := svc.GenerateCode(ctx, "alice@example.com")
	require.NoError(t, err)

	second, err := svc.GenerateCode(ctx, "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
}

func TestBindingCodeExpiryIs300Seconds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	bc, err := svc.GenerateCode(ctx, "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, identity.BindingCodeTTL, bc.ExpiresAt.Sub(bc.CreatedAt))
}

func TestRedeemCodeBindsTelegramAndIsOneTime(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	bc, err := svc.GenerateCode(ctx, "alice@example.com")
	require.NoError(t, err)

	email, err := svc.RedeemCode(ctx, bc.Code, "999")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	u, bound, err := svc.BindingStatus(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, "999", u.TelegramChatID)
	assert.Equal(t, identity.BindingStatusComplete, u.BindingStatus)

	// Second redemption of the same code must fail.
	_, err = svc.RedeemCode(ctx, bc.Code, "1000")
	assert.Error(t, err)
}

func TestRedeemCodeRejectsNonSixDigit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.RedeemCode(ctx, "12345", "999")
	assert.True(t, relayerr.Is(err, relayerr.KindInvalidInput))
}

func TestRedeemCodeRejectsHijack(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	bc1, err := svc.GenerateCode(ctx, "alice@example.com")
	require.NoError(t, err)
	_, err = svc.RedeemCode(ctx, bc1.Code, "999")
	require.NoError(t, err)

	bc2, err := svc.GenerateCode(ctx, "bob@example.com")
	require.NoError(t, err)

	_, err = svc.RedeemCode(ctx, bc2.Code, "999")
	assert.True(t, relayerr.Is(err, relayerr.KindConflict))
}

func TestLoginRateLimitSixthAttemptBlocked(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Store().PutWebUser(ctx, &identity.WebUser{
		Email:    "alice@example.com",
		Enabled:  true,
		Role:     identity.RoleUser,
	}))

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "alice@example.com", "wrong-password")
		assert.Error(t, err)
		assert.False(t, relayerr.Is(err, relayerr.KindRateLimited), "attempt %d should not be rate limited yet", i+1)
	}

	_, err := svc.Login(ctx, "alice@example.com", "wrong-password")
	assert.True(t, relayerr.Is(err, relayerr.KindRateLimited))
}

func TestAllowlistSelfLockoutGuard(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.AllowlistAdd(ctx, "1", "admin"))
	require.NoError(t, svc.AllowlistSetRole(ctx, "0", "1", identity.RoleAdmin))

	err := svc.AllowlistRemove(ctx, "1", "1")
	assert.True(t, relayerr.Is(err, relayerr.KindForbidden))

	err = svc.AllowlistSetEnabled(ctx, "1", "1", false)
	assert.True(t, relayerr.Is(err, relayerr.KindForbidden))

	err = svc.AllowlistSetRole(ctx, "1", "1", identity.RoleUser)
	assert.True(t, relayerr.Is(err, relayerr.KindForbidden))
}

func TestPasswordComplexity(t *testing.T) {
	assert.Error(t, identity.ValidatePasswordComplexity("short1A"))
	assert.Error(t, identity.ValidatePasswordComplexity("alllowercase1"))
	assert.Error(t, identity.ValidatePasswordComplexity("ALLUPPERCASE1"))
	assert.Error(t, identity.ValidatePasswordComplexity("NoDigitsHere"))
	assert.NoError(t, identity.ValidatePasswordComplexity("GoodPass1"))
}
