package source

import (
	"context"
	"time"

	"github.com/radiusdt/inapp-report/internal/metrics"
	"github.com/radiusdt/inapp-report/internal/models"
	"go.uber.org/zap"
)

// Origin tells where a loaded record set came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginUpstream Origin = "upstream"
)

// Load is the result of a Loader call.
type Load struct {
	Records []models.HourlyRecord
	Origin  Origin
	// FetchedAt is the time the records left the upstream, which for a
	// cache hit is the entry's write time.
	FetchedAt time.Time
	Skipped   int
}

// Loader serves the report from the cache while it is fresh and fetches
// it otherwise, overwriting the cache. A nil cache always fetches.
type Loader struct {
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLoader creates a loader. ttl <= 0 means DefaultCacheTTL.
func NewLoader(fetcher Fetcher, cache Cache, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Loader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		fetcher: fetcher,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Load returns the cached report when fresh, else fetches it. Cache
// failures are logged and fall through to the upstream.
func (l *Loader) Load(ctx context.Context) (*Load, error) {
	if l.cache != nil {
		entry, err := l.cache.Get(ctx)
		switch {
		case err != nil:
			l.logger.Warn("report cache read failed", zap.String("backend", l.cache.Name()), zap.Error(err))
			l.recordLookup("error")
		case entry == nil:
			l.logger.Debug("report cache miss", zap.String("backend", l.cache.Name()))
			l.recordLookup("miss")
		case !entry.Fresh(l.now(), l.ttl):
			l.logger.Debug("report cache stale",
				zap.String("backend", l.cache.Name()),
				zap.Time("written_at", entry.WrittenAt()),
			)
			l.recordLookup("stale")
		default:
			l.logger.Debug("report cache hit",
				zap.String("backend", l.cache.Name()),
				zap.Int("records", len(entry.Data)),
			)
			l.recordLookup("hit")
			return &Load{Records: entry.Data, Origin: OriginCache, FetchedAt: entry.WrittenAt()}, nil
		}
	}
	return l.Refresh(ctx)
}

// Refresh fetches the report regardless of the cache and overwrites it.
func (l *Loader) Refresh(ctx context.Context) (*Load, error) {
	res, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	at := l.now().UTC()
	if l.cache != nil {
		if err := l.cache.Set(ctx, NewEntry(res.Records, at)); err != nil {
			l.logger.Warn("report cache write failed", zap.String("backend", l.cache.Name()), zap.Error(err))
		}
	}
	return &Load{Records: res.Records, Origin: OriginUpstream, FetchedAt: at, Skipped: res.Skipped}, nil
}

func (l *Loader) recordLookup(result string) {
	if l.metrics != nil {
		l.metrics.RecordCacheLookup(l.cache.Name(), result)
	}
}
