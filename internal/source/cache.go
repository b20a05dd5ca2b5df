package source

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheKey is the key the report is cached under.
const DefaultCacheKey = "hourlyReport"

// DefaultCacheTTL is how long a cached report stays valid.
const DefaultCacheTTL = 12 * time.Hour

// Entry is a cached report: the records plus the Unix millisecond time
// they were written.
type Entry struct {
	Data      []models.HourlyRecord `json:"data"`
	Timestamp int64                 `json:"timestamp"`
}

// NewEntry stamps records with at.
func NewEntry(records []models.HourlyRecord, at time.Time) *Entry {
	return &Entry{Data: records, Timestamp: at.UnixMilli()}
}

// WrittenAt returns the entry's write time.
func (e *Entry) WrittenAt() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Fresh reports whether the entry is younger than ttl at now.
func (e *Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.WrittenAt()) < ttl
}

// Cache is a single-entry store for the fetched report. Get returns nil
// without error on a miss.
type Cache interface {
	Get(ctx context.Context) (*Entry, error)
	Set(ctx context.Context, e *Entry) error
	Name() string
}

// MemoryCache keeps the entry in process.
type MemoryCache struct {
	mu    sync.RWMutex
	entry *Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(_ context.Context) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry, nil
}

func (c *MemoryCache) Set(_ context.Context, e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = e
	return nil
}

func (c *MemoryCache) Name() string { return "memory" }

// RedisCache stores the entry as JSON under one key with a TTL, so an
// expired entry disappears on its own.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = DefaultCacheKey
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, key: key, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) (*Entry, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read cache")
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "decode cache entry")
	}
	return &e, nil
}

func (c *RedisCache) Set(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode cache entry")
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "write cache")
	}
	return nil
}

func (c *RedisCache) Name() string { return "redis" }
