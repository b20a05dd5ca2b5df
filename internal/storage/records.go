package storage

import (
	"sync/atomic"
	"time"

	"github.com/radiusdt/inapp-report/internal/models"
	"go.uber.org/zap"
)

// Snapshot is one fetched record set. It is never modified after it is
// published; readers can hold on to it for as long as they like.
type Snapshot struct {
	Records    []models.HourlyRecord
	LoadedAt   time.Time
	Generation uint64
	// Skipped counts records dropped at ingestion.
	Skipped int
}

// Len returns the number of records, zero for a nil snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// RecordStore holds the current snapshot. Replace swaps the whole set in
// one pointer store, so a concurrent reader sees either the old or the
// new set and never a mix.
type RecordStore struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecordStore creates an empty store.
func NewRecordStore(logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{logger: logger, now: time.Now}
}

// Replace normalizes records, drops the ones that fail shape validation
// and publishes the rest as the new snapshot.
func (s *RecordStore) Replace(records []models.HourlyRecord) *Snapshot {
	kept := make([]models.HourlyRecord, 0, len(records))
	skipped := 0
	for i, r := range records {
		r = r.Normalized()
		if err := r.Validate(); err != nil {
			s.logger.Warn("skipping malformed record",
				zap.Int("index", i),
				zap.String("app_service_id", r.AppServiceID),
				zap.String("date", r.DateValue()),
				zap.Int("hrs", r.Hrs),
				zap.Error(err),
			)
			skipped++
			continue
		}
		kept = append(kept, r)
	}

	snap := &Snapshot{
		Records:    kept,
		LoadedAt:   s.now().UTC(),
		Generation: s.generation.Add(1),
		Skipped:    skipped,
	}
	s.current.Store(snap)

	s.logger.Info("record store replaced",
		zap.Int("records", len(kept)),
		zap.Int("skipped", skipped),
		zap.Uint64("generation", snap.Generation),
	)
	return snap
}

// Snapshot returns the current snapshot, nil before the first Replace.
func (s *RecordStore) Snapshot() *Snapshot {
	return s.current.Load()
}

// Loaded reports whether a snapshot has been published.
func (s *RecordStore) Loaded() bool {
	return s.current.Load() != nil
}
