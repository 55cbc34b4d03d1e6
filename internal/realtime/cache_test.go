package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"chatwall/internal/platform/metrics"
	id "chatwall/pkg/domain"
	"chatwall/pkg/platform/sentinel"
)

type fakeDirectory struct {
	participants map[id.ConversationID][]id.UserID
	err          error
	calls        int
}

func (d *fakeDirectory) ParticipantsOf(_ context.Context, convID id.ConversationID) ([]id.UserID, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	p, ok := d.participants[convID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func newTestCache(t *testing.T, dir *fakeDirectory, ttl time.Duration) (*AccessCache, *time.Time) {
	t.Helper()
	cache := NewAccessCache(dir, ttl, testLogger(), testMetrics())
	now := time.Now()
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestAccessCache_Authorize(t *testing.T) {
	ctx := context.Background()
	member := id.NewUserID()
	outsider := id.NewUserID()
	convID := id.NewConversationID()

	t.Run("member is allowed and cached", func(t *testing.T) {
		dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
			convID: {member, id.NewUserID()},
		}}
		cache, _ := newTestCache(t, dir, time.Minute)

		require.True(t, cache.Authorize(ctx, member, convID))
		require.True(t, cache.Authorize(ctx, member, convID))
		require.Equal(t, 1, dir.calls, "second check should be served from cache")
	})

	t.Run("non participant is denied from cached entry", func(t *testing.T) {
		dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
			convID: {member},
		}}
		cache, _ := newTestCache(t, dir, time.Minute)

		require.True(t, cache.Authorize(ctx, member, convID))
		require.False(t, cache.Authorize(ctx, outsider, convID))
		require.Equal(t, 1, dir.calls)
	})

	t.Run("unknown conversation is denied and not cached", func(t *testing.T) {
		dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{}}
		cache, _ := newTestCache(t, dir, time.Minute)

		require.False(t, cache.Authorize(ctx, member, convID))
		require.False(t, cache.Authorize(ctx, member, convID))
		require.Equal(t, 2, dir.calls, "denials must be re-checked every time")
		require.Zero(t, cache.size())
	})

	t.Run("outsider denial is not cached", func(t *testing.T) {
		dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
			convID: {member},
		}}
		cache, _ := newTestCache(t, dir, time.Minute)

		require.False(t, cache.Authorize(ctx, outsider, convID))
		require.Zero(t, cache.size())

		// The outsider gets added; access takes effect immediately.
		dir.participants[convID] = []id.UserID{member, outsider}
		require.True(t, cache.Authorize(ctx, outsider, convID))
	})

	t.Run("directory failure denies", func(t *testing.T) {
		dir := &fakeDirectory{err: errors.New("connection refused")}
		cache, _ := newTestCache(t, dir, time.Minute)

		require.False(t, cache.Authorize(ctx, member, convID))
		require.Zero(t, cache.size())
	})
}

func TestAccessCache_TTL(t *testing.T) {
	ctx := context.Background()
	member := id.NewUserID()
	convID := id.NewConversationID()

	dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
		convID: {member},
	}}
	cache, now := newTestCache(t, dir, 5*time.Minute)

	require.True(t, cache.Authorize(ctx, member, convID))

	// Membership is revoked but the cached entry still answers.
	delete(dir.participants, convID)
	*now = now.Add(4 * time.Minute)
	require.True(t, cache.Authorize(ctx, member, convID))
	require.Equal(t, 1, dir.calls)

	// Past the TTL the directory is consulted again and the revocation
	// takes effect.
	*now = now.Add(2 * time.Minute)
	require.False(t, cache.Authorize(ctx, member, convID))
	require.Equal(t, 2, dir.calls)
}

func TestAccessCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	member := id.NewUserID()
	convID := id.NewConversationID()

	dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
		convID: {member},
	}}
	cache, _ := newTestCache(t, dir, time.Hour)

	require.True(t, cache.Authorize(ctx, member, convID))
	delete(dir.participants, convID)
	require.True(t, cache.Authorize(ctx, member, convID), "still cached")

	cache.Invalidate(convID)
	require.False(t, cache.Authorize(ctx, member, convID))
}

func TestAccessCache_Sweep(t *testing.T) {
	ctx := context.Background()
	member := id.NewUserID()
	fresh := id.NewConversationID()
	stale := id.NewConversationID()

	dir := &fakeDirectory{participants: map[id.ConversationID][]id.UserID{
		fresh: {member},
		stale: {member},
	}}
	cache, now := newTestCache(t, dir, 5*time.Minute)

	require.True(t, cache.Authorize(ctx, member, stale))
	*now = now.Add(3 * time.Minute)
	require.True(t, cache.Authorize(ctx, member, fresh))
	require.Equal(t, 2, cache.size())

	*now = now.Add(3 * time.Minute)
	cache.sweepOnce()
	require.Equal(t, 1, cache.size(), "only the expired entry is evicted")
}
