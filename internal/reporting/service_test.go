package reporting

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/inapp-report/internal/metrics"
	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/radiusdt/inapp-report/internal/source"
	"github.com/radiusdt/inapp-report/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubLoader struct {
	mu        sync.Mutex
	loads     int
	refreshes int
	records   []models.HourlyRecord
	err       error
}

func (l *stubLoader) Load(context.Context) (*source.Load, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return &source.Load{Records: l.records, Origin: source.OriginCache}, nil
}

func (l *stubLoader) Refresh(context.Context) (*source.Load, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	if l.err != nil {
		return nil, l.err
	}
	return &source.Load{Records: l.records, Origin: source.OriginUpstream}, nil
}

func records() []models.HourlyRecord {
	return []models.HourlyRecord{
		{AppServiceID: "1", ActDate: "2024-01-01", Hrs: 5, PinGenSucCount: 100, PinVerSucCount: 40, Territory: "us", ServiceOwner: "acme", PartnerName: "adnet", ServiceName: "games"},
		{AppServiceID: "1", ActDate: "2024-01-01", Hrs: 6, PinGenSucCount: 50, PinVerSucCount: 10, Territory: "us", ServiceOwner: "acme", PartnerName: "adnet", ServiceName: "games"},
		{AppServiceID: "2", ActDate: "2024-01-02", Hrs: 1, PinGenSucCount: 10, PinVerSucCount: 5, Territory: "uk", ServiceOwner: "globex", PartnerName: "clickco", ServiceName: "news"},
		{AppServiceID: "", ActDate: "2024-01-02", Hrs: 1},
	}
}

func newTestService(t *testing.T, loader *stubLoader) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	svc := NewService(loader, storage.NewRecordStore(nil), nil, Options{RejectFutureDates: true}, nil, m)
	svc.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	return svc, m
}

func ownerQuery(owner string) Query {
	return Query{Tab: models.TabOwner, Spec: models.FilterSpec{ServiceOwner: owner}}
}

func TestEnsureLoadedLoadsOnce(t *testing.T) {
	loader := &stubLoader{records: records()}
	svc, m := newTestService(t, loader)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.EnsureLoaded(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, loader.loads)
	snap := svc.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("ingest")))
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	loader := &stubLoader{records: records()}
	svc, _ := newTestService(t, loader)
	ctx := context.Background()

	first, err := svc.EnsureLoaded(ctx)
	require.NoError(t, err)

	loader.records = records()[:1]
	second, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.refreshes)
	assert.Greater(t, second.Generation, first.Generation)
	assert.Equal(t, 1, svc.Snapshot().Len())
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	loader := &stubLoader{records: records()}
	svc, _ := newTestService(t, loader)
	ctx := context.Background()

	before, err := svc.EnsureLoaded(ctx)
	require.NoError(t, err)

	loader.err = &source.FetchError{StatusCode: 500}
	_, err = svc.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, source.ErrFetch))
	assert.Same(t, before, svc.Snapshot())
}

func TestHourly(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{records: records()})

	view, err := svc.Hourly(context.Background(), Query{
		Tab:  models.TabOwner,
		Spec: models.FilterSpec{ServiceOwner: "Acme", Territory: "US"},
	})
	require.NoError(t, err)
	assert.True(t, view.FiltersApplied)
	assert.Equal(t, 2, view.Records)
	assert.Equal(t, "ACME", view.Spec.ServiceOwner)

	g, ok := view.Report.Group("2024-01-01", "1")
	require.True(t, ok)
	assert.Equal(t, "40%", g.Slots()[5].CRLabel())
	assert.Equal(t, int64(150), g.TotalPinGen())
}

func TestHourlyGate(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{records: records()})

	view, err := svc.Hourly(context.Background(), Query{Tab: models.TabOwner, Spec: models.FilterSpec{Territory: "US"}})
	require.NoError(t, err)
	assert.False(t, view.FiltersApplied)
	assert.True(t, view.Report.IsEmpty())
}

func TestHourlyValidation(t *testing.T) {
	loader := &stubLoader{records: records()}
	svc, _ := newTestService(t, loader)
	ctx := context.Background()

	tests := []struct {
		name string
		q    Query
	}{
		{"partner tab needs dates", Query{Tab: models.TabPartner, Spec: models.FilterSpec{PartnerName: "adnet"}}},
		{"inverted range", Query{Tab: models.TabOwner, Spec: models.FilterSpec{ServiceOwner: "acme", DateRange: models.DateRange{From: "2024-01-05", To: "2024-01-01"}}}},
		{"future range", Query{Tab: models.TabOwner, Spec: models.FilterSpec{ServiceOwner: "acme", DateRange: models.DateRange{From: "2024-01-05", To: "2024-02-01"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Hourly(ctx, tt.q)
			var verr *models.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
	// Invalid input never reaches the loader.
	assert.Zero(t, loader.loads)
}

func TestHourlyFetchError(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{err: &source.FetchError{StatusCode: 503}})

	_, err := svc.Hourly(context.Background(), ownerQuery("acme"))
	assert.True(t, errors.Is(err, source.ErrFetch))
}

func TestBuildMemo(t *testing.T) {
	loader := &stubLoader{records: records()}
	svc, m := newTestService(t, loader)
	ctx := context.Background()

	a, err := svc.Hourly(ctx, ownerQuery("acme"))
	require.NoError(t, err)
	b, err := svc.Hourly(ctx, ownerQuery(" ACME "))
	require.NoError(t, err)
	assert.Same(t, a.Report, b.Report)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportBuilds.WithLabelValues("hit")))

	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	c, err := svc.Hourly(ctx, ownerQuery("acme"))
	require.NoError(t, err)
	assert.NotSame(t, a.Report, c.Report)
}

func TestOptions(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{records: records()})

	res, err := svc.Options(context.Background(), Query{
		Tab:  models.TabOwner,
		Spec: models.FilterSpec{ServiceOwner: "acme", Territory: "uk"},
	}, models.FieldServiceOwner)
	require.NoError(t, err)

	assert.Equal(t, "ACME", res.Spec.ServiceOwner)
	assert.Empty(t, res.Spec.Territory)
	assert.Equal(t, []string{"US"}, res.Options[models.FieldTerritory])
	assert.Equal(t, []models.Field{models.FieldTerritory}, res.Cleared)
}

func TestOptionsRejectsReversedRange(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{records: records()})
	ctx := context.Background()

	for _, dr := range []models.DateRange{
		{From: "2024-01-05", To: "2024-01-01"},
		{From: "zzz", To: "2024-01-01"},
		{From: "2024-01-01"},
	} {
		_, err := svc.Options(ctx, Query{Tab: models.TabOwner, Spec: models.FilterSpec{DateRange: dr}}, "")
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr), "%+v: %v", dr, err)
	}
}

func TestOptionsCanonicalizesDateBounds(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{records: records()})
	ctx := context.Background()
	dr := models.DateRange{From: "2024-01-01T00:00:00Z", To: "2024-01-02"}

	res, err := svc.Options(ctx, Query{Tab: models.TabOwner, Spec: models.FilterSpec{DateRange: dr}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME", "GLOBEX"}, res.Options[models.FieldServiceOwner])
	assert.Equal(t, "2024-01-01", res.Spec.DateRange.From)

	view, err := svc.Hourly(ctx, Query{Tab: models.TabOwner, Spec: models.FilterSpec{ServiceOwner: "acme", DateRange: dr}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01"}, view.Report.Days())

	// The partner tab lists options before its dates are chosen.
	res, err = svc.Options(ctx, Query{Tab: models.TabPartner}, models.FieldPartnerName)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADNET", "CLICKCO"}, res.Options[models.FieldPartnerName])
}

func TestSeries(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{records: records()})
	ctx := context.Background()

	points, err := svc.Series(ctx, ownerQuery("acme"), "2024-01-01", "1")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 5, points[0].Hour)
	assert.Equal(t, 40.0, points[0].CR)
	assert.Equal(t, 20.0, points[1].CR)

	_, err = svc.Series(ctx, ownerQuery("acme"), "2024-01-02", "2")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = svc.Series(ctx, ownerQuery("acme"), "yesterday", "1")
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestDailyCR(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{records: records()})

	points, err := svc.DailyCR(context.Background(), Query{Tab: models.TabOwner})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-01-01", points[0].Date)
	assert.Equal(t, 33.33, points[0].CR)
	assert.Equal(t, 50.0, points[1].CR)
}

func TestPrepareExport(t *testing.T) {
	svc, m := newTestService(t, &stubLoader{records: records()})
	ctx := context.Background()

	exp, err := svc.PrepareExport(ctx, ownerQuery("acme"), "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", exp.Day)
	assert.Equal(t, "ACME_2024-01-01.xlsx", exp.Filename)
	assert.Len(t, exp.Rows, 13)

	var buf bytes.Buffer
	require.NoError(t, exp.WriteTo(&buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	cell, err := f.GetCellValue("Traffic Data", "B1")
	require.NoError(t, err)
	assert.Equal(t, "1", cell)

	partner := Query{
		Tab:  models.TabPartner,
		Spec: models.FilterSpec{PartnerName: "clickco", DateRange: models.DateRange{From: "2024-01-01", To: "2024-01-03"}},
	}
	exp, err = svc.PrepareExport(ctx, partner, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, "CLICKCO_2024-01-02.xlsx", exp.Filename)

	_, err = svc.PrepareExport(ctx, partner, "2024-01-01")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("owner", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("partner", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("partner", "empty")))
}

func TestPreferences(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{})
	ctx := context.Background()

	saved, err := svc.SavePreferences(ctx, models.TabOwner, models.FilterSpec{ServiceOwner: " acme ", Territory: "us"})
	require.NoError(t, err)
	assert.Equal(t, "ACME", saved.ServiceOwner)

	got, err := svc.LoadPreferences(ctx, models.TabOwner)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	_, err = svc.SavePreferences(ctx, models.TabOwner, models.FilterSpec{DateRange: models.DateRange{From: "2024-01-01"}})
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))
}
