package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssuePair_StoresRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "alice", "secret")

	pair, err := env.tokens.IssuePair(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	assert.Equal(t, pair.RefreshToken, env.rm.accounts.get(id).RefreshToken)

	sub, err := env.tokens.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, sub)

	acc, err := env.tokens.VerifyRefreshToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, id, acc.ID)
}

func TestTokenService_IssueRefreshToken_AccountGone(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.tokens.IssueRefreshToken(context.Background(), "7f1c1a2e-1111-4222-8333-444455556666")
	assert.ErrorIs(t, err, common.ErrAccountGone)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestTokenService_AccessTokenIsNotARefreshToken(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "alice", "secret")
	pair, err := env.tokens.IssuePair(context.Background(), id)
	require.NoError(t, err)

	_, err = env.tokens.VerifyRefreshToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = env.tokens.VerifyAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestTokenService_VerifyRefreshToken_Expired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.RefreshTokenValidityDuration = -time.Minute })
	id := env.register(t, "alice", "secret")

	pair, err := env.tokens.IssuePair(context.Background(), id)
	require.NoError(t, err)

	_, err = env.tokens.VerifyRefreshToken(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestTokenService_VerifyRefreshToken_AccountDeleted(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "alice", "secret")
	pair, err := env.tokens.IssuePair(context.Background(), id)
	require.NoError(t, err)

	env.rm.accounts.remove(id)

	_, err = env.tokens.VerifyRefreshToken(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrAccountGone)
}

func TestTokenService_Rotate_InvalidatesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "alice", "secret")
	first, err := env.tokens.IssuePair(ctx, id)
	require.NoError(t, err)

	second, err := env.tokens.Rotate(ctx, id, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = env.tokens.VerifyRefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenMismatch)

	_, err = env.tokens.Rotate(ctx, id, first.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenMismatch)

	_, err = env.tokens.VerifyRefreshToken(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenService_Rotate_ConcurrentSameTokenOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "alice", "secret")
	pair, err := env.tokens.IssuePair(ctx, id)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.tokens.Rotate(ctx, id, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, common.ErrRefreshTokenMismatch)
	}
	assert.Equal(t, 1, wins)
}

func TestTokenService_Rotate_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "alice", "secret")
	pair, err := env.tokens.IssuePair(context.Background(), id)
	require.NoError(t, err)

	env.rm.accounts.err = errBoom
	_, err = env.tokens.Rotate(context.Background(), id, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.ErrorIs(t, err, errBoom)
}

func TestTokenService_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "alice", "secret")
	pair, err := env.tokens.IssuePair(ctx, id)
	require.NoError(t, err)

	require.NoError(t, env.tokens.Revoke(ctx, id))
	require.NoError(t, env.tokens.Revoke(ctx, id))

	_, err = env.tokens.VerifyRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenMismatch)

	assert.NoError(t, env.tokens.Revoke(ctx, "7f1c1a2e-1111-4222-8333-444455556666"))
}

func TestTokenService_AccessTokenSubject_IgnoresExpiry(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.AccessTokenValidityDuration = -time.Minute })

	token, _, err := env.tokens.IssueAccessToken("acc-1")
	require.NoError(t, err)

	_, err = env.tokens.VerifyAccessToken(token)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	sub, err := env.tokens.AccessTokenSubject(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", sub)
}

func TestStoreErr_ClassifiesTimeouts(t *testing.T) {
	err := storeErr("op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, common.ErrorUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = storeErr("op", errBoom)
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.NotErrorIs(t, err, common.ErrorUpstream)
}
