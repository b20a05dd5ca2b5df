// Package reporting connects the data source, the record store and the
// funnel pipeline behind the operations the HTTP layer exposes.
package reporting

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/funnel"
	"github.com/radiusdt/inapp-report/internal/metrics"
	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/radiusdt/inapp-report/internal/source"
	"github.com/radiusdt/inapp-report/internal/storage"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested day or service has no data.
var ErrNotFound = errors.New("no data for selection")

// Loader supplies record sets; *source.Loader implements it.
type Loader interface {
	Load(ctx context.Context) (*source.Load, error)
	Refresh(ctx context.Context) (*source.Load, error)
}

// Options tune the service.
type Options struct {
	// DayOffsetDays shifts every record's day key.
	DayOffsetDays int
	// RejectFutureDates rejects date ranges that end after today.
	RejectFutureDates bool
}

// Query is a filter request on one tab.
type Query struct {
	Tab  models.Tab
	Spec models.FilterSpec
}

// Service answers report queries against the current snapshot.
type Service struct {
	loader     Loader
	store      *storage.RecordStore
	prefs      storage.PreferenceStore
	evaluator  *funnel.Evaluator
	aggregator *funnel.Aggregator
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	loadMu sync.Mutex

	memoMu sync.Mutex
	memo   *memoEntry
}

// memoEntry is the last built report, valid while the snapshot
// generation and the normalized spec are unchanged.
type memoEntry struct {
	generation uint64
	spec       models.FilterSpec
	filtered   []models.HourlyRecord
	report     *funnel.Report
}

// NewService creates a report service. prefs may be nil, in which case
// preferences live in memory.
func NewService(loader Loader, store *storage.RecordStore, prefs storage.PreferenceStore, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefs == nil {
		prefs = storage.NewInMemoryPreferenceStore()
	}
	days := funnel.DayKeyer{OffsetDays: opts.DayOffsetDays}
	return &Service{
		loader:     loader,
		store:      store,
		prefs:      prefs,
		evaluator:  funnel.NewEvaluator(days),
		aggregator: funnel.NewAggregator(days, logger),
		opts:       opts,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// ===========================================
// LOADING
// ===========================================

// Refresh fetches upstream, bypassing the cache, and replaces the store.
// On failure the previous snapshot stays in place.
func (s *Service) Refresh(ctx context.Context) (*storage.Snapshot, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	load, err := s.loader.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return s.publish(load), nil
}

// EnsureLoaded returns the current snapshot, loading one through the
// cache first if the store is still empty.
func (s *Service) EnsureLoaded(ctx context.Context) (*storage.Snapshot, error) {
	if snap := s.store.Snapshot(); snap != nil {
		return snap, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if snap := s.store.Snapshot(); snap != nil {
		return snap, nil
	}
	load, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.publish(load), nil
}

func (s *Service) publish(load *source.Load) *storage.Snapshot {
	snap := s.store.Replace(load.Records)
	s.logger.Info("report data loaded",
		zap.String("origin", string(load.Origin)),
		zap.Time("fetched_at", load.FetchedAt),
		zap.Int("records", snap.Len()),
		zap.Uint64("generation", snap.Generation),
	)
	if s.metrics != nil {
		s.metrics.RecordSnapshot(snap.Len(), snap.LoadedAt)
		s.metrics.RecordSkipped("ingest", snap.Skipped)
	}
	return snap
}

// Snapshot returns the current snapshot without loading.
func (s *Service) Snapshot() *storage.Snapshot {
	return s.store.Snapshot()
}

// ===========================================
// QUERIES
// ===========================================

// Validate checks q's date range for its tab and canonicalizes it.
func (s *Service) Validate(q *Query) error {
	return s.validate(q, q.Tab == models.TabPartner)
}

func (s *Service) validate(q *Query, requireDates bool) error {
	q.Spec = q.Spec.Normalized()
	return q.Spec.Validate(models.ValidationOptions{
		RequireDates: requireDates,
		RejectFuture: s.opts.RejectFutureDates,
		Now:          s.now(),
	})
}

// FiltersApplied reports whether q selects enough to render a report:
// the owner tab needs a service owner, the partner tab its date range.
func FiltersApplied(q Query) bool {
	if q.Tab == models.TabPartner {
		return !q.Spec.DateRange.IsEmpty()
	}
	return q.Spec.ServiceOwner != ""
}

// HourlyView is the grouped report for one query.
type HourlyView struct {
	Tab            models.Tab        `json:"tab"`
	Spec           models.FilterSpec `json:"filters"`
	FiltersApplied bool              `json:"filtersApplied"`
	LoadedAt       time.Time         `json:"loadedAt"`
	Records        int               `json:"records"`
	Report         *funnel.Report    `json:"days"`
}

// Hourly filters and groups the snapshot. Until the tab's filters are
// applied it returns an empty report.
func (s *Service) Hourly(ctx context.Context, q Query) (*HourlyView, error) {
	if err := s.Validate(&q); err != nil {
		return nil, err
	}
	snap, err := s.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	view := &HourlyView{
		Tab:            q.Tab,
		Spec:           q.Spec,
		FiltersApplied: FiltersApplied(q),
		LoadedAt:       snap.LoadedAt,
	}
	if !view.FiltersApplied {
		view.Report = s.aggregator.Group(nil)
		return view, nil
	}

	filtered, rep := s.build(snap, q.Spec, "hourly")
	view.Records = len(filtered)
	view.Report = rep
	return view, nil
}

// Options reconciles q's selections after a change to the changed field
// and lists the options for every field. The date range is checked as for
// Hourly, except that the partner tab may ask before choosing its dates.
func (s *Service) Options(ctx context.Context, q Query, changed models.Field) (funnel.CascadeResult, error) {
	if err := s.validate(&q, false); err != nil {
		return funnel.CascadeResult{}, err
	}
	snap, err := s.EnsureLoaded(ctx)
	if err != nil {
		return funnel.CascadeResult{}, err
	}
	start := time.Now()
	res := s.evaluator.Cascade(snap.Records, q.Spec, q.Tab, changed)
	if s.metrics != nil {
		s.metrics.RecordReportBuild("options", false, time.Since(start))
	}
	return res, nil
}

// Series is the hour chart for one service on one day.
func (s *Service) Series(ctx context.Context, q Query, day, serviceID string) ([]funnel.SeriesPoint, error) {
	g, err := s.group(ctx, q, day, serviceID)
	if err != nil {
		return nil, err
	}
	return g.Series(), nil
}

func (s *Service) group(ctx context.Context, q Query, day, serviceID string) (*funnel.Group, error) {
	if err := s.Validate(&q); err != nil {
		return nil, err
	}
	parsed, err := models.ParseDay(day)
	if err != nil {
		return nil, &models.ValidationError{Field: "date", Reason: err.Error()}
	}
	snap, err := s.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	_, rep := s.build(snap, q.Spec, "series")
	g, ok := rep.Group(parsed.Format(models.DayLayout), serviceID)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "service %s on %s", serviceID, day)
	}
	return g, nil
}

// DailyCR is the per-day total CR of every service in the selection.
func (s *Service) DailyCR(ctx context.Context, q Query) ([]funnel.DailyCRPoint, error) {
	if err := s.Validate(&q); err != nil {
		return nil, err
	}
	snap, err := s.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	_, rep := s.build(snap, q.Spec, "daily_cr")
	return rep.DailyCR(), nil
}

// build filters and groups, reusing the previous result when neither the
// snapshot nor the spec changed.
func (s *Service) build(snap *storage.Snapshot, spec models.FilterSpec, view string) ([]models.HourlyRecord, *funnel.Report) {
	spec = spec.Normalized()
	start := time.Now()

	s.memoMu.Lock()
	defer s.memoMu.Unlock()

	if m := s.memo; m != nil && m.generation == snap.Generation && m.spec == spec {
		if s.metrics != nil {
			s.metrics.RecordReportBuild(view, true, time.Since(start))
		}
		return m.filtered, m.report
	}

	filtered := s.evaluator.Apply(snap.Records, spec)
	rep := s.aggregator.Group(filtered)
	s.memo = &memoEntry{generation: snap.Generation, spec: spec, filtered: filtered, report: rep}

	if s.metrics != nil {
		s.metrics.RecordReportBuild(view, false, time.Since(start))
	}
	s.logger.Debug("report built",
		zap.String("view", view),
		zap.Int("records", len(filtered)),
		zap.Int("groups", rep.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return filtered, rep
}

// ===========================================
// EXPORT
// ===========================================

// Export is a prepared spreadsheet download.
type Export struct {
	Filename string
	Day      string
	Rows     []funnel.Row
}

// WriteTo writes the xlsx document.
func (e *Export) WriteTo(w io.Writer) error {
	return funnel.WriteWorkbook(w, e.Rows)
}

// PrepareExport lays out one day of the selection. An empty day means
// the first day in the selection.
func (s *Service) PrepareExport(ctx context.Context, q Query, day string) (*Export, error) {
	if err := s.Validate(&q); err != nil {
		return nil, err
	}
	if day != "" {
		parsed, err := models.ParseDay(day)
		if err != nil {
			return nil, &models.ValidationError{Field: "date", Reason: err.Error()}
		}
		day = parsed.Format(models.DayLayout)
	}
	snap, err := s.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	_, rep := s.build(snap, q.Spec, "export")
	if day == "" {
		days := rep.Days()
		if len(days) == 0 {
			s.recordExport(q.Tab, "empty")
			return nil, errors.Wrap(ErrNotFound, "nothing to export")
		}
		day = days[0]
	}

	groups := rep.DayGroups(day)
	if len(groups) == 0 {
		s.recordExport(q.Tab, "empty")
		return nil, errors.Wrapf(ErrNotFound, "nothing to export on %s", day)
	}

	s.recordExport(q.Tab, "ok")
	return &Export{
		Filename: funnel.ExportFilename(q.Tab, groups, day),
		Day:      day,
		Rows:     funnel.ExportRows(groups),
	}, nil
}

func (s *Service) recordExport(tab models.Tab, status string) {
	if s.metrics != nil {
		s.metrics.RecordExport(string(tab), status)
	}
}

// ===========================================
// PREFERENCES
// ===========================================

// LoadPreferences returns the last filter saved for tab.
func (s *Service) LoadPreferences(ctx context.Context, tab models.Tab) (models.FilterSpec, error) {
	spec, err := s.prefs.Load(ctx, tab)
	if err != nil {
		return models.FilterSpec{}, errors.Wrapf(err, "load %s preferences", tab)
	}
	return spec, nil
}

// SavePreferences stores spec as tab's last filter. The date range only
// has to be well formed; it may be stored before data for it exists.
func (s *Service) SavePreferences(ctx context.Context, tab models.Tab, spec models.FilterSpec) (models.FilterSpec, error) {
	spec = spec.Normalized()
	if err := spec.Validate(models.ValidationOptions{}); err != nil {
		return models.FilterSpec{}, err
	}
	if err := s.prefs.Save(ctx, tab, spec); err != nil {
		return models.FilterSpec{}, errors.Wrapf(err, "save %s preferences", tab)
	}
	return spec, nil
}
