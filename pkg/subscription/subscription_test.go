package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/subscription"
)

func setupService(t *testing.T, ttl time.Duration) (*subscription.Service, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return subscription.NewService(client, ttl, log.Discard()), server
}

func TestTokenLifecycle(t *testing.T) {
	t.Parallel()

	service, server := setupService(t, time.Hour)
	ctx := context.Background()

	token, err := service.Generate(ctx, "exec-1", "user-1")
	require.NoError(t, err)
	assert.Len(t, token.Token, 64)
	assert.True(t, server.Exists("sseToken:"+token.Token))

	members, err := server.SMembers("execToken:exec-1")
	require.NoError(t, err)
	assert.Equal(t, []string{token.Token}, members)

	verification, err := service.Verify(ctx, "exec-1", token.Token)
	require.NoError(t, err)
	assert.True(t, verification.Valid)
	assert.Equal(t, "user-1", verification.UserID)

	verification, err = service.Verify(ctx, "exec-2", token.Token)
	require.NoError(t, err)
	assert.False(t, verification.Valid)

	require.NoError(t, service.Invalidate(ctx, "exec-1"))

	verification, err = service.Verify(ctx, "exec-1", token.Token)
	require.NoError(t, err)
	assert.False(t, verification.Valid)
	assert.False(t, server.Exists("execToken:exec-1"))
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	service, server := setupService(t, time.Minute)
	ctx := context.Background()

	token, err := service.Generate(ctx, "exec-1", "user-1")
	require.NoError(t, err)

	server.FastForward(2 * time.Minute)

	verification, err := service.Verify(ctx, "exec-1", token.Token)
	require.NoError(t, err)
	assert.False(t, verification.Valid)
}

func TestVerify_UnknownToken(t *testing.T) {
	t.Parallel()

	service, _ := setupService(t, time.Minute)

	verification, err := service.Verify(context.Background(), "exec-1", "nope")
	require.NoError(t, err)
	assert.False(t, verification.Valid)

	verification, err = service.Verify(context.Background(), "exec-1", "")
	require.NoError(t, err)
	assert.False(t, verification.Valid)
}

func TestInvalidate_NoTokens(t *testing.T) {
	t.Parallel()

	service, _ := setupService(t, time.Minute)

	assert.NoError(t, service.Invalidate(context.Background(), "exec-unknown"))
}
