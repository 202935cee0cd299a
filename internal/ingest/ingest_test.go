package ingest

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/cyclewatch/internal/cycle"
	"github.com/lox/cyclewatch/internal/models"
	"github.com/lox/cyclewatch/internal/store"
)

type fakeProvider struct {
	values     []string
	err        error
	calls      int
	start, end time.Time
}

func (f *fakeProvider) Source() string   { return "fake" }
func (f *fakeProvider) SeriesID() string { return "TEST" }

func (f *fakeProvider) Fetch(ctx context.Context, start, end time.Time) ([]models.RawObservation, *FetchResult, error) {
	f.calls++
	f.start, f.end = start, end
	if f.err != nil {
		return nil, &FetchResult{HTTPStatus: 503}, f.err
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]models.RawObservation, len(f.values))
	for i, v := range f.values {
		obs[i] = models.RawObservation{Date: day.AddDate(0, 0, i), Value: v}
	}
	return obs, &FetchResult{HTTPStatus: 200, RecordCount: len(obs), ResponseSize: 42, Body: []byte("csv body")}, nil
}

// transitionValues classifies as RECESSION from day 10, then GROWTH from day 12.
var transitionValues = []string{
	"100", "100", "100", "100", "100", "100", "100", "100", "100", "100",
	"200", "200", "50", "", "n/a",
}

func testParams() cycle.Params {
	return cycle.Params{LongWindow: 10, ShortWindow: 1, FutureOffset: 2, FutureSpan: 1, TrendThreshold: 0.05, LevelThreshold: 0.05}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())
	return s
}

func newTestJob(t *testing.T, provider SeriesProvider) (*Job, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	job := NewJob(s, s, provider, testParams(), 30, time.UTC)
	job.now = func() time.Time { return time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC) }
	return job, s
}

func TestJob_Run(t *testing.T) {
	provider := &fakeProvider{values: transitionValues}
	job, s := newTestJob(t, provider)
	ctx := context.Background()

	rec, err := job.Run(ctx, TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-04", rec.Key())
	assert.Equal(t, "GROWTH", rec.Phase)
	assert.Equal(t, "RECESSION", rec.Preceding)
	assert.Equal(t, "2024-01-13", rec.Since.Format(models.DateLayout))
	assert.Equal(t, `Current status: "GROWTH", since: "2024-01-13", before: "RECESSION"`, rec.Status)

	assert.Equal(t, "2024-02-03", provider.start.Format(models.DateLayout))
	assert.Equal(t, "2024-03-04", provider.end.Format(models.DateLayout))

	latest, err := s.LatestStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.Status, latest.Status)

	runs, err := s.RecentRuns(ctx, 5, false)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.True(t, run.Success)
	assert.Equal(t, "fake", run.Source)
	assert.Equal(t, TriggerManual, run.TriggeredBy)
	assert.Equal(t, int64(15), run.RowsFetched.Int64)
	assert.Equal(t, int64(2), run.MissingValues.Int64)
	assert.Equal(t, int64(1), run.ParseErrors.Int64)
	assert.Equal(t, "GROWTH", run.Phase.String)

	payload, err := s.GetRunPayload(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "csv body", string(payload))
}

func TestJob_Run_InsufficientData(t *testing.T) {
	provider := &fakeProvider{values: []string{"1", "1", "1", "1", "1"}}
	job, s := newTestJob(t, provider)
	ctx := context.Background()

	_, err := job.Run(ctx, TriggerSchedule)
	require.ErrorIs(t, err, cycle.ErrInsufficientData)

	_, err = s.LatestStatus(ctx)
	require.ErrorIs(t, err, store.ErrNotFound, "failed run must not store a status")

	runs, err := s.RecentRuns(ctx, 5, true)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].ErrorMessage.String, "insufficient data")
}

func TestJob_Run_FetchError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("status 503")}
	job, s := newTestJob(t, provider)
	ctx := context.Background()

	_, err := job.Run(ctx, TriggerSchedule)
	require.ErrorContains(t, err, "fetch TEST: status 503")

	runs, err := s.RecentRuns(ctx, 5, true)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(503), runs[0].HTTPStatus.Int64)
}

func TestJob_WithoutAudit(t *testing.T) {
	s := setupTestStore(t)
	job := NewJob(nil, s, &fakeProvider{values: transitionValues}, testParams(), 0, nil)

	rec, err := job.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, "GROWTH", rec.Phase)
	assert.Equal(t, DefaultHistoryDays, job.historyDays)
}

func TestScheduler_RunIfStale(t *testing.T) {
	provider := &fakeProvider{values: transitionValues}
	job, s := newTestJob(t, provider)
	ctx := context.Background()

	sched, err := NewScheduler(job, s, "", time.UTC)
	require.NoError(t, err)

	sched.runIfStale(ctx)
	assert.Equal(t, 1, provider.calls, "empty store should trigger a run")

	sched.runIfStale(ctx)
	assert.Equal(t, 1, provider.calls, "today's status already stored")
}

func TestScheduler_Next(t *testing.T) {
	sched, err := NewScheduler(nil, nil, DefaultSchedule, time.UTC)
	require.NoError(t, err)

	next := sched.Next(time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 5, 5, 0, 0, 0, time.UTC), next)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler(nil, nil, "every day", time.UTC)
	require.Error(t, err)
}

type blockingProvider struct {
	fakeProvider
	started chan struct{}
	release chan struct{}
}

func (b *blockingProvider) Fetch(ctx context.Context, start, end time.Time) ([]models.RawObservation, *FetchResult, error) {
	close(b.started)
	<-b.release
	return b.fakeProvider.Fetch(ctx, start, end)
}

func TestScheduler_ShutdownWaitsForRunningJob(t *testing.T) {
	provider := &blockingProvider{
		fakeProvider: fakeProvider{values: transitionValues},
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	job, s := newTestJob(t, provider)

	sched, err := NewScheduler(job, s, "", time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	<-provider.started
	cancel()

	select {
	case <-done:
		t.Fatal("scheduler returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(provider.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after the job finished")
	}

	latest, err := s.LatestStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GROWTH", latest.Phase)

	runs, err := s.RecentRuns(context.Background(), 5, false)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.True(t, runs[0].FinishedAt.Valid)
}
