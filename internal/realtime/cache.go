package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chatwall/internal/platform/metrics"
	id "chatwall/pkg/domain"
	"chatwall/pkg/platform/sentinel"
)

const (
	// DefaultAccessTTL bounds how long a revoked membership can keep
	// flowing through the gateway.
	DefaultAccessTTL = 5 * time.Minute

	// DefaultSweepInterval is how often expired entries are evicted.
	DefaultSweepInterval = 10 * time.Minute
)

// Directory is the durable source of conversation membership.
type Directory interface {
	ParticipantsOf(ctx context.Context, convID id.ConversationID) ([]id.UserID, error)
}

// Authorizer answers whether a user may act inside a conversation right now.
type Authorizer interface {
	Authorize(ctx context.Context, userID id.UserID, convID id.ConversationID) bool
}

type cacheEntry struct {
	participants []id.UserID
	expiresAt    time.Time
}

// AccessCache memoizes conversation membership in front of the Directory.
// Only positive answers are cached: a denial is always re-checked on the next
// attempt, so granting someone access takes effect immediately while
// revocation takes effect within the TTL.
type AccessCache struct {
	mu      sync.RWMutex
	entries map[id.ConversationID]cacheEntry

	directory Directory
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewAccessCache(directory Directory, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *AccessCache {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &AccessCache{
		entries:   make(map[id.ConversationID]cacheEntry),
		directory: directory,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
		metrics:   m,
	}
}

// Authorize reports whether userID is a participant of convID. Any failure to
// reach the Directory denies access; the gateway never guesses.
func (c *AccessCache) Authorize(ctx context.Context, userID id.UserID, convID id.ConversationID) bool {
	c.mu.RLock()
	e, ok := c.entries[convID]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		c.metrics.AccessCacheHits.Inc()
		return contains(e.participants, userID)
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
		// Not cached: the user may be added at any moment and should
		// not wait out a stale denial.
		return false
	}

	c.mu.Lock()
	c.entries[convID] = cacheEntry{
		participants: participants,
		expiresAt:    c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return true
}

// Invalidate drops the cached entry for a conversation; the next check
// consults the directory. Participant lists are fixed at creation in this
// system, so nothing calls this in normal operation. It exists for
// out-of-band membership repair (and keeps the expiry path testable).
func (c *AccessCache) Invalidate(convID id.ConversationID) {
	c.mu.Lock()
	delete(c.entries, convID)
	c.mu.Unlock()
}

// Sweep evicts expired entries on the given interval until ctx is cancelled.
// Expired entries are already ignored on read; the sweep only reclaims
// memory for conversations nobody touches anymore.
func (c *AccessCache) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

func (c *AccessCache) sweepOnce() {
	now := c.now()
	c.mu.Lock()
	for convID, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, convID)
		}
	}
	c.mu.Unlock()
}

func (c *AccessCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func contains(participants []id.UserID, userID id.UserID) bool {
	for _, p := range participants {
		if p == userID {
			return true
		}
	}
	return false
}
