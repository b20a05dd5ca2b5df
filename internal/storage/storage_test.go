package storage

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecordStoreReplace(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := NewRecordStore(zap.New(core))
	assert.False(t, store.Loaded())
	assert.Zero(t, store.Snapshot().Len())

	snap := store.Replace([]models.HourlyRecord{
		{AppServiceID: " 1 ", ActDate: "2024-01-01", Hrs: 3, Territory: "us "},
		{AppServiceID: "", ActDate: "2024-01-01", Hrs: 3},
		{AppServiceID: "2", ActDate: "2024-01-01", Hrs: 30},
	})

	require.True(t, store.Loaded())
	assert.Same(t, snap, store.Snapshot())
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 2, snap.Skipped)
	assert.Equal(t, 2, logs.FilterMessage("skipping malformed record").Len())
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "1", snap.Records[0].AppServiceID)
	assert.Equal(t, "US", snap.Records[0].Territory)

	next := store.Replace(nil)
	assert.Equal(t, uint64(2), next.Generation)
	assert.Zero(t, next.Len())
	// The earlier snapshot is untouched.
	assert.Len(t, snap.Records, 1)
}

func TestRecordStoreConcurrentReaders(t *testing.T) {
	store := NewRecordStore(nil)
	batch := func(n int) []models.HourlyRecord {
		out := make([]models.HourlyRecord, n)
		for i := range out {
			out[i] = models.HourlyRecord{AppServiceID: "1", ActDate: "2024-01-01", Hrs: i % 24}
		}
		return out
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.Replace(batch(10 * (w + 1)))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if snap := store.Snapshot(); snap != nil {
					assert.Zero(t, snap.Len()%10)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(200), store.Snapshot().Generation)
}

func TestInMemoryPreferenceStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryPreferenceStore()

	spec, err := store.Load(ctx, models.TabOwner)
	require.NoError(t, err)
	assert.True(t, spec.IsEmpty())

	want := models.FilterSpec{ServiceOwner: "ACME", Territory: "IN"}
	require.NoError(t, store.Save(ctx, models.TabOwner, want))

	got, err := store.Load(ctx, models.TabOwner)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	other, err := store.Load(ctx, models.TabPartner)
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())
}

func TestRedisPreferenceStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	store := NewRedisPreferenceStore(client, "test")

	spec, err := store.Load(ctx, models.TabPartner)
	require.NoError(t, err)
	assert.True(t, spec.IsEmpty())

	want := models.FilterSpec{
		PartnerName: "ADNET",
		DateRange:   models.DateRange{From: "2024-01-01", To: "2024-01-07"},
		Operator:    "JIO",
	}
	require.NoError(t, store.Save(ctx, models.TabPartner, want))
	assert.Equal(t, "ADNET", mr.HGet("test:prefs:partner", "partnerName"))
	assert.Equal(t, "2024-01-07", mr.HGet("test:prefs:partner", "dateTo"))

	got, err := store.Load(ctx, models.TabPartner)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A later save replaces, it does not merge.
	require.NoError(t, store.Save(ctx, models.TabPartner, models.FilterSpec{PartnerName: "CLICKCO"}))
	got, err = store.Load(ctx, models.TabPartner)
	require.NoError(t, err)
	assert.Equal(t, models.FilterSpec{PartnerName: "CLICKCO"}, got)

	require.NoError(t, store.Save(ctx, models.TabPartner, models.FilterSpec{}))
	assert.False(t, mr.Exists("test:prefs:partner"))
}

func TestRedisPreferenceStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err = NewRedisPreferenceStore(client, "").Load(context.Background(), models.TabOwner)
	assert.Error(t, err)
}

// fakePG records statements and answers QueryRow from a canned row.
type fakePG struct {
	execs []string
	args  [][]any
	row   []string
	err   error
}

func (f *fakePG) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakePG) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return fakeRow{values: f.row, err: f.err}
}

type fakeRow struct {
	values []string
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.values == nil {
		return pgx.ErrNoRows
	}
	for i, d := range dest {
		*(d.(*string)) = r.values[i]
	}
	return nil
}

func TestPostgresPreferenceStore(t *testing.T) {
	ctx := context.Background()
	db := &fakePG{}
	store := NewPostgresPreferenceStore(db)

	require.NoError(t, store.EnsureSchema(ctx))
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS filter_preferences")

	spec, err := store.Load(ctx, models.TabOwner)
	require.NoError(t, err)
	assert.True(t, spec.IsEmpty())

	want := models.FilterSpec{ServiceOwner: "ACME", DateRange: models.DateRange{From: "2024-01-01", To: "2024-01-02"}}
	require.NoError(t, store.Save(ctx, models.TabOwner, want))
	require.Len(t, db.execs, 2)
	assert.True(t, strings.Contains(db.execs[1], "ON CONFLICT (tab)"))
	assert.Equal(t, []any{"owner", "ACME", "2024-01-01", "2024-01-02", "", "", "", "", ""}, db.args[1])

	db.row = []string{"ACME", "2024-01-01", "2024-01-02", "", "IN", "", "", ""}
	got, err := store.Load(ctx, models.TabOwner)
	require.NoError(t, err)
	assert.Equal(t, "IN", got.Territory)
	assert.Equal(t, want.DateRange, got.DateRange)

	db.err = errors.New("connection refused")
	_, err = store.Load(ctx, models.TabOwner)
	assert.Error(t, err)
	assert.Error(t, store.Save(ctx, models.TabOwner, want))
}
