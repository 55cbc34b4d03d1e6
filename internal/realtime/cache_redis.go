package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"chatwall/internal/platform/metrics"
	id "chatwall/pkg/domain"
	"chatwall/pkg/platform/sentinel"
)

const redisAccessPrefix = "access:conv:"

// RedisAccessCache is the shared-cache variant of AccessCache for multi
// process deployments. Membership is stored as a Redis set per conversation
// with the TTL applied to the whole key, so eviction needs no sweeper.
type RedisAccessCache struct {
	rdb       *redis.Client
	directory Directory
	ttl       time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewRedisAccessCache(rdb *redis.Client, directory Directory, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *RedisAccessCache {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &RedisAccessCache{
		rdb:       rdb,
		directory: directory,
		ttl:       ttl,
		logger:    logger,
		metrics:   m,
	}
}

func (c *RedisAccessCache) Authorize(ctx context.Context, userID id.UserID, convID id.ConversationID) bool {
	key := redisAccessPrefix + convID.String()

	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Warn("access cache unavailable, checking directory", "error", err)
	} else if exists > 0 {
		member, err := c.rdb.SIsMember(ctx, key, userID.String()).Result()
		if err == nil {
			c.metrics.AccessCacheHits.Inc()
			return member
		}
		c.logger.Warn("access cache read failed, checking directory", "error", err)
	}
	c.metrics.AccessCacheMisses.Inc()

	participants, err := c.directory.ParticipantsOf(ctx, convID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			c.logger.Warn("access check failed, denying", "error", err, "conversation_id", convID)
		}
		return false
	}
	if !contains(participants, userID) {
		return false
	}

	members := make([]interface{}, 0, len(participants))
	for _, p := range participants {
		members = append(members, p.String())
	}
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		// Cache write failures only cost a directory hit next time.
		c.logger.Warn("access cache write failed", "error", err)
	}
	return true
}

// Invalidate drops the cached membership set for a conversation; the next
// check consults the directory. See AccessCache.Invalidate for when this is
// expected to be used.
func (c *RedisAccessCache) Invalidate(ctx context.Context, convID id.ConversationID) {
	if err := c.rdb.Del(ctx, redisAccessPrefix+convID.String()).Err(); err != nil {
		c.logger.Warn("access cache invalidate failed", "error", err)
	}
}
