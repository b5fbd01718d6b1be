package corpus

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"salesrep/logging"
	"salesrep/metrics"
)

const DefaultTTL = time.Hour

// Expired reports whether a snapshot taken at refreshedAt is stale at now.
// A zero refreshedAt or a non-positive ttl is always expired.
func Expired(now, refreshedAt time.Time, ttl time.Duration) bool {
	if refreshedAt.IsZero() || ttl <= 0 {
		return true
	}
	return !now.Before(refreshedAt.Add(ttl))
}

// Cache holds the current snapshot for the whole process. Refreshes replace it
// wholesale; concurrent callers share a single refresh.
type Cache struct {
	mu      sync.RWMutex
	snap    *Snapshot
	ttl     time.Duration
	source  Source
	sf      singleflight.Group
	now     func() time.Time
	log     logging.Logger
	metrics *metrics.Metrics
}

func NewCache(source Source, ttl time.Duration, log logging.Logger, m *metrics.Metrics) *Cache {
	return &Cache{source: source, ttl: ttl, now: time.Now, log: log, metrics: m}
}

// Get returns the cached snapshot, rebuilding it first when expired.
func (c *Cache) Get(ctx context.Context) *Snapshot {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	if snap != nil && !Expired(c.now(), snap.RefreshedAt, c.ttl) {
		return snap
	}
	return c.Refresh(ctx)
}

// Refresh rebuilds unconditionally. Callers arriving during a refresh wait for it.
func (c *Cache) Refresh(ctx context.Context) *Snapshot {
	v, _, shared := c.sf.Do("refresh", func() (interface{}, error) {
		start := time.Now()
		// the snapshot outlives the request that triggered it
		snap := c.source.Build(context.WithoutCancel(ctx))
		if snap.RefreshedAt.IsZero() {
			snap.RefreshedAt = c.now()
		}

		c.mu.Lock()
		c.snap = snap
		c.mu.Unlock()

		c.metrics.ObserveRefresh(time.Since(start))
		return snap, nil
	})
	if shared {
		c.log.Debug("joined in-flight refresh")
	}
	return v.(*Snapshot)
}

// Peek returns the current snapshot without refreshing; nil before the first build.
func (c *Cache) Peek() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
