//go:build integration

package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	id "chatwall/pkg/domain"
	"chatwall/pkg/testutil/containers"
)

func TestRedisAccessCache_Authorize(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	member := id.NewUserID()
	outsider := id.NewUserID()
	convID := id.NewConversationID()

	dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
		convID: {member},
	}}
	cache := NewRedisAccessCache(rc.Client, dir, time.Minute, testLogger(), testMetrics())

	require.True(t, cache.Authorize(ctx, member, convID))
	require.True(t, cache.Authorize(ctx, member, convID))
	require.Equal(t, 1, dir.calls, "second check must hit redis, not the directory")

	require.False(t, cache.Authorize(ctx, outsider, convID), "cached set answers for non-members too")
	require.Equal(t, 1, dir.calls)

	require.NoError(t, rc.FlushAll(ctx))

	// Outsider denials are never cached.
	require.False(t, cache.Authorize(ctx, outsider, convID))
	require.False(t, cache.Authorize(ctx, outsider, convID))
	require.Equal(t, 3, dir.calls)
}

func TestRedisAccessCache_TTLExpiry(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	member := id.NewUserID()
	convID := id.NewConversationID()

	dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
		convID: {member},
	}}
	cache := NewRedisAccessCache(rc.Client, dir, time.Second, testLogger(), testMetrics())

	require.True(t, cache.Authorize(ctx, member, convID))
	delete(dir.participants, convID)
	require.True(t, cache.Authorize(ctx, member, convID), "revocation invisible until the key expires")

	time.Sleep(1500 * time.Millisecond)
	require.False(t, cache.Authorize(ctx, member, convID))
}

func TestRedisAccessCache_Invalidate(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	member := id.NewUserID()
	convID := id.NewConversationID()

	dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
		convID: {member},
	}}
	cache := NewRedisAccessCache(rc.Client, dir, time.Minute, testLogger(), testMetrics())

	require.True(t, cache.Authorize(ctx, member, convID))
	delete(dir.participants, convID)

	cache.Invalidate(ctx, convID)
	require.False(t, cache.Authorize(ctx, member, convID))
}
