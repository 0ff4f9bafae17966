package mapping

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/prochub/prochub/internal/metrics"
)

const (
	// DefaultTTL bounds how long a resolved mapping is served without
	// consulting the source again.
	DefaultTTL = 5 * time.Minute
	// DefaultFallbackTTL is the shorter bound for vanilla fallbacks, so a
	// recovering source or a late-arriving mapping is picked up quickly.
	DefaultFallbackTTL = 30 * time.Second
	// DefaultMaxEntries bounds the cache; least-recently-used entries are
	// evicted beyond it, independent of TTL expiry.
	DefaultMaxEntries = 4096
)

// CacheOptions tune the cache. Zero values take the defaults above.
type CacheOptions struct {
	TTL         time.Duration
	FallbackTTL time.Duration
	MaxEntries  int
	Metrics     metrics.Sink
	Logger      *slog.Logger
}

type cachedEntry struct {
	mapping   Mapping
	expiresAt time.Time
}

// Cache is the process-wide mapping resolution cache. Safe for concurrent
// callers; population is the only mutation dispatches perform.
type Cache struct {
	source      Source
	ttl         time.Duration
	fallbackTTL time.Duration
	metrics     metrics.Sink
	logger      *slog.Logger
	entries     *expirable.LRU[Key, cachedEntry]
}

// NewCache builds a cache over source.
func NewCache(source Source, opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FallbackTTL <= 0 {
		opts.FallbackTTL = DefaultFallbackTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Cache{
		source:      source,
		ttl:         opts.TTL,
		fallbackTTL: opts.FallbackTTL,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		// The LRU's own TTL acts as a backstop; per-entry expiry below is
		// what distinguishes fallback entries from real ones.
		entries: expirable.NewLRU[Key, cachedEntry](opts.MaxEntries, nil, opts.TTL),
	}
}

// Resolve returns the mapping for key: cached when fresh, fetched on miss,
// vanilla fallback when the source has no mapping or is unreachable. Callers
// never fail purely due to missing configuration.
func (c *Cache) Resolve(ctx context.Context, key Key) (Mapping, error) {
	if entry, ok := c.entries.Get(key); ok && time.Now().Before(entry.expiresAt) {
		c.metrics.RecordCacheHit()
		return entry.mapping, nil
	}
	c.metrics.RecordCacheMiss()

	m, err := c.source.FetchMapping(ctx, key)
	switch {
	case err == nil:
		c.entries.Add(key, cachedEntry{mapping: m, expiresAt: time.Now().Add(c.ttl)})
		return m, nil

	case errors.Is(err, ErrNoMapping):
		c.logger.Debug("no mapping configured, using vanilla fallback",
			"tenant", key.TenantID, "operation", key.OperationID)

	case errors.Is(err, context.Canceled):
		return Mapping{}, err

	default:
		c.logger.Warn("mapping source unavailable, using vanilla fallback",
			"tenant", key.TenantID, "operation", key.OperationID, "error", err)
	}

	c.metrics.RecordCacheFallback()
	fb := vanilla(key)
	c.entries.Add(key, cachedEntry{mapping: fb, expiresAt: time.Now().Add(c.fallbackTTL)})
	return fb, nil
}

// Invalidate purges every cached entry for tenant, leaving other tenants'
// entries valid. Returns the number of entries removed.
func (c *Cache) Invalidate(tenant string) int {
	removed := 0
	for _, key := range c.entries.Keys() {
		if key.TenantID == tenant {
			if c.entries.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	return c.entries.Len()
}
