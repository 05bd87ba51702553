package publishlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/domainpress/pipeline/internal/clients/publishlock"
	"github.com/domainpress/pipeline/internal/common"
)

func newTestLock(t *testing.T) *publishlock.RedisLock {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return publishlock.NewRedisLock(client, common.NewSilentLogger())
}

func TestRedisLock_AcquireIsExclusive(t *testing.T) {
	lock := newTestLock(t)
	ctx := context.Background()

	first, err := lock.Acquire(ctx, "campaign-1", "pinterest", time.Minute)
	require.NoError(t, err)
	require.True(t, first, "first acquire should succeed")

	second, err := lock.Acquire(ctx, "campaign-1", "pinterest", time.Minute)
	require.NoError(t, err)
	require.False(t, second, "second acquire while held should fail")
}

func TestRedisLock_AcquireIsScopedPerCampaignAndChannel(t *testing.T) {
	lock := newTestLock(t)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, "campaign-1", "pinterest", time.Minute)
	require.NoError(t, err)

	otherChannel, err := lock.Acquire(ctx, "campaign-1", "youtube_shorts", time.Minute)
	require.NoError(t, err)
	require.True(t, otherChannel, "a different channel on the same campaign is a different lock")

	otherCampaign, err := lock.Acquire(ctx, "campaign-2", "pinterest", time.Minute)
	require.NoError(t, err)
	require.True(t, otherCampaign, "the same channel on a different campaign is a different lock")
}

func TestRedisLock_ReleaseAllowsReacquire(t *testing.T) {
	lock := newTestLock(t)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, "campaign-1", "pinterest", time.Minute)
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx, "campaign-1", "pinterest"))

	reacquired, err := lock.Acquire(ctx, "campaign-1", "pinterest", time.Minute)
	require.NoError(t, err)
	require.True(t, reacquired, "release should free the key for a new acquire")
}
