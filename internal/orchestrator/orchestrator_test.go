package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
	"github.com/livinlefevreloca/p2g/internal/stats"
	"github.com/livinlefevreloca/p2g/internal/testutil"
)

// ==============================================================================
// Test Helpers
// ==============================================================================

var t0 = time.Unix(1700000000, 0).UTC()

func at(offset int64) int64 { return t0.Unix() + offset }

var names = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima"}

type fixture struct {
	orch     *Orchestrator
	provider *testutil.FakeProvider
	sink     *testutil.FakeSink
	manifest *testutil.MemoryManifest
	clock    *testutil.MockClock
	logger   *testutil.TestLogger
	stats    *recordingWriter
	checks   []model.Entity
}

type recordingWriter struct {
	records []stats.RunRecord
}

func (w *recordingWriter) WriteSyncRun(_ context.Context, rec stats.RunRecord) error {
	w.records = append(w.records, rec)
	return nil
}

func makeChecks(n int) []model.Entity {
	checks := make([]model.Entity, n)
	for i := range checks {
		checks[i] = model.Entity{Kind: model.KindCheck, ID: int64(i + 1), Name: names[i], Status: "up"}
	}
	return checks
}

// newFixture builds an orchestrator over n checks. Each check serves two raw
// results, one outage interval and one performance hour; seven points in all.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()

	f := &fixture{
		provider: testutil.NewFakeProvider(),
		sink:     testutil.NewFakeSink(),
		manifest: testutil.NewMemoryManifest(),
		clock:    testutil.NewMockClock(t0),
		logger:   testutil.NewTestLogger(),
		stats:    &recordingWriter{},
		checks:   makeChecks(n),
	}

	probes := []model.Probe{{ID: 7, City: "Frankfurt", CountryISO: "DE"}}
	f.provider.SetCatalog(f.checks, nil, probes)

	for _, c := range f.checks {
		f.provider.SetResults(c.Key(), model.CategoryResults, []model.RawResult{
			{Fields: map[string]any{"time": at(-3000), "status": "up", "probeid": 7, "responsetime": 100}},
			{Fields: map[string]any{"time": at(-2000), "status": "down", "probeid": 7, "responsetime": 900}},
		})
		f.provider.SetResults(c.Key(), model.CategoryOutage, []model.RawResult{
			{Fields: map[string]any{"timefrom": at(-3000), "timeto": at(-100), "status": "up"}},
		})
		f.provider.SetResults(c.Key(), model.CategoryPerformance, []model.RawResult{
			{Fields: map[string]any{"starttime": at(-3600), "avgresponse": 120}},
		})
	}

	f.orch = New(Deps{
		Provider: f.provider,
		Sink:     f.sink,
		Manifest: f.manifest,
		Stats:    f.stats,
		Logger:   f.logger.Logger(),
		Clock:    f.clock.Now,
	})
	return f
}

func (f *fixture) checkpointOf(id int64, cat model.Category) model.Checkpoint {
	return f.manifest.Checkpoint(model.EntityKey{Kind: model.KindCheck, ID: id}, cat)
}

func fetchedCategories(calls []testutil.FetchCall, key model.EntityKey) []model.Category {
	var cats []model.Category
	for _, c := range calls {
		if c.Entity == key {
			cats = append(cats, c.Category)
		}
	}
	return cats
}

// ==============================================================================
// Pass Tests
// ==============================================================================

func TestSync_BootstrapRefreshesCatalog(t *testing.T) {
	f := newFixture(t, 2)
	f.provider.SetCatalog(f.checks, []model.Entity{
		{Kind: model.KindTransaction, ID: 9, Name: "checkout", Group: "payments"},
	}, []model.Probe{{ID: 7, City: "Frankfurt", CountryISO: "DE"}})

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.manifest.CatalogSaves())
	entities, _ := f.manifest.LoadEntities(context.Background())
	assert.Len(t, entities, 3)

	tm := model.EntityKey{Kind: model.KindTransaction, ID: 9}
	assert.ElementsMatch(t,
		[]model.Category{model.CategoryOutage, model.CategoryPerformance},
		fetchedCategories(f.provider.Calls(), tm))

	assert.Equal(t, 14, report.Delivered)
	assert.Empty(t, report.FailedEntities)

	var paths []string
	for _, p := range f.sink.Points() {
		paths = append(paths, p.Path)
	}
	assert.Contains(t, paths, "checks.results.alpha.de.frankfurt.status")
	assert.Contains(t, paths, "checks.results.alpha.de.frankfurt.responsetime")
	assert.Contains(t, paths, "checks.summary.outage.bravo.status")
	assert.Contains(t, paths, "checks.summary.performance.bravo.avgresponse")
}

func TestSync_ExistingCheckpointsSkipRefresh(t *testing.T) {
	f := newFixture(t, 1)
	f.manifest.Seed(f.checks, nil, checkpoint.Map{
		{Entity: f.checks[0].Key(), Category: model.CategoryResults}: model.NewCheckpoint(at(-5000), at(-4000)),
	})

	_, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, f.manifest.CatalogSaves())
}

func TestSync_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t, 5)
	failing := f.checks[2].Key()
	f.provider.FailEntity(failing, errors.UpstreamFatal(errors.New("check not found")))

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err, "entity failures never fail the pass")

	assert.Equal(t, []model.EntityKey{failing}, report.FailedEntities)
	assert.Equal(t, 28, report.Delivered)
	assert.Equal(t, 12, report.Committed)

	for _, id := range []int64{1, 2, 4, 5} {
		for _, cat := range model.KindCheck.Categories() {
			assert.False(t, f.checkpointOf(id, cat).IsZero(), "check %d %s should be committed", id, cat)
		}
	}
	for _, cat := range model.KindCheck.Categories() {
		assert.True(t, f.checkpointOf(3, cat).IsZero(), "failed check must keep its checkpoint")
	}

	assert.True(t, f.checkpointOf(1, model.CategoryResults).Equal(model.NewCheckpoint(at(-3000), at(-2000))))
	assert.True(t, f.checkpointOf(1, model.CategoryOutage).Equal(model.NewCheckpoint(at(-3000), at(-100))))
	assert.True(t, f.checkpointOf(1, model.CategoryPerformance).Equal(model.NewCheckpoint(at(-3600), at(-3600))))
	assert.Equal(t, 1, f.manifest.Saves(), "checkpoints are flushed once per pass")
}

func TestSync_SummaryOnlySkipsResults(t *testing.T) {
	f := newFixture(t, 1)
	prior := model.NewCheckpoint(at(-5000), at(-4000))
	key := f.checks[0].Key()
	f.manifest.Seed(f.checks, nil, checkpoint.Map{
		{Entity: key, Category: model.CategoryResults}: prior,
	})

	report, err := f.orch.Sync(context.Background(), nil, Options{SummaryOnly: true})
	require.NoError(t, err)

	assert.NotContains(t, fetchedCategories(f.provider.Calls(), key), model.CategoryResults)
	assert.True(t, f.checkpointOf(1, model.CategoryResults).Equal(prior))
	assert.Equal(t, 3, report.Delivered)
}

func TestSync_PerformanceSkipWithinTheHour(t *testing.T) {
	f := newFixture(t, 1)
	key := f.checks[0].Key()
	recent := model.NewCheckpoint(at(-7200), at(-600))
	f.manifest.Seed(f.checks, nil, checkpoint.Map{
		{Entity: key, Category: model.CategoryPerformance}: recent,
	})

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.NotContains(t, fetchedCategories(f.provider.Calls(), key), model.CategoryPerformance)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, f.checkpointOf(1, model.CategoryPerformance).Equal(recent))
}

func TestSync_HorizonClamp(t *testing.T) {
	f := newFixture(t, 1)
	key := f.checks[0].Key()
	f.manifest.Seed(f.checks, nil, checkpoint.Map{
		{Entity: key, Category: model.CategoryResults}: model.NewCheckpoint(at(-100*86400), at(-90*86400)),
	})

	_, err := f.orch.Sync(context.Background(), nil, Options{MaxHorizon: 24 * time.Hour})
	require.NoError(t, err)

	for _, c := range f.provider.Calls() {
		if c.Category == model.CategoryResults {
			assert.Equal(t, at(-86400), c.Since)
		}
	}
}

func TestSync_NoGapAcrossPasses(t *testing.T) {
	f := newFixture(t, 1)
	key := f.checks[0].Key()

	_, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	f.provider.AppendResults(key, model.CategoryResults,
		model.RawResult{Fields: map[string]any{"time": at(-1000), "status": "up"}},
		model.RawResult{Fields: map[string]any{"time": at(300), "status": "up"}},
	)
	f.clock.Advance(10 * time.Minute)
	before := len(f.sink.Points())

	_, err = f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	var second []int64
	for _, p := range f.sink.Points()[before:] {
		if p.Path == "checks.results.alpha.unknown.unknown.status" || p.Path == "checks.results.alpha.de.frankfurt.status" {
			second = append(second, p.Timestamp)
		}
	}
	assert.Equal(t, []int64{at(-2000), at(-1000), at(300)}, second, "boundary record is re-sent, nothing is skipped")

	assert.True(t, f.checkpointOf(1, model.CategoryResults).Equal(model.NewCheckpoint(at(-3000), at(300))))
}

func TestSync_OngoingOutageReanchoredAcrossPasses(t *testing.T) {
	f := newFixture(t, 1)
	key := f.checks[0].Key()
	f.provider.SetResults(key, model.CategoryOutage, []model.RawResult{
		{Fields: map[string]any{"timefrom": at(-3000), "timeto": at(-2000), "status": "up"}},
		{Fields: map[string]any{"timefrom": at(-2000), "timeto": at(-1000), "status": "down"}},
	})

	_, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)
	require.True(t, f.checkpointOf(1, model.CategoryOutage).Equal(model.NewCheckpoint(at(-3000), at(-1000))))

	// Still down ten minutes later: the same state comes back with a later end.
	f.provider.SetResults(key, model.CategoryOutage, []model.RawResult{
		{Fields: map[string]any{"timefrom": at(-2000), "timeto": at(600), "status": "down"}},
	})
	f.clock.Advance(10 * time.Minute)
	before := len(f.sink.Points())

	_, err = f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	var outage []model.MetricPoint
	for _, p := range f.sink.Points()[before:] {
		if p.Path == "checks.summary.outage.alpha.status" {
			outage = append(outage, p)
		}
	}
	require.Len(t, outage, 2)
	assert.ElementsMatch(t, []int64{at(600), at(-2000)}, []int64{outage[0].Timestamp, outage[1].Timestamp})
	for _, p := range outage {
		assert.Equal(t, float64(0), p.Value)
	}
	assert.True(t, f.checkpointOf(1, model.CategoryOutage).Equal(model.NewCheckpoint(at(-3000), at(600))),
		"got %s", f.checkpointOf(1, model.CategoryOutage))
}

func TestSync_SinkFatalAbortsDelivery(t *testing.T) {
	f := newFixture(t, 3)
	f.sink.FailWith(func(points []model.MetricPoint) error {
		if strings.Contains(points[0].Path, ".bravo.") {
			return errors.SinkFatal(errors.New("401 unauthorized"))
		}
		return nil
	})
	recorder := NewStateRecorder()
	f.orch.recorder = recorder

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsSinkFatal(err))

	assert.Equal(t, 7, report.Delivered)
	assert.Equal(t, []model.EntityKey{f.checks[1].Key(), f.checks[2].Key()}, report.FailedEntities)

	assert.False(t, f.checkpointOf(1, model.CategoryResults).IsZero(), "acknowledged batches stay committed")
	assert.True(t, f.checkpointOf(2, model.CategoryResults).IsZero())
	assert.True(t, f.checkpointOf(3, model.CategoryResults).IsZero())
	assert.Equal(t, 4, f.sink.Publishes(), "nothing is published after the fatal error")

	path := recorder.Path()
	assert.Equal(t, []string{"commit_checkpoints", "failed"}, path[len(path)-2:])
}

func TestSync_SinkErrorIsEntityScoped(t *testing.T) {
	f := newFixture(t, 3)
	f.sink.FailWith(func(points []model.MetricPoint) error {
		if strings.Contains(points[0].Path, ".bravo.") {
			return errors.New("422 unprocessable")
		}
		return nil
	})

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, []model.EntityKey{f.checks[1].Key()}, report.FailedEntities)
	assert.Equal(t, 14, report.Delivered)
	assert.True(t, f.checkpointOf(2, model.CategoryOutage).IsZero())
	assert.False(t, f.checkpointOf(3, model.CategoryOutage).IsZero())
}

func TestSync_BoundedConcurrency(t *testing.T) {
	f := newFixture(t, 12)
	f.provider.SetDelay(20 * time.Millisecond)

	_, err := f.orch.Sync(context.Background(), nil, Options{Concurrency: 3})
	require.NoError(t, err)

	assert.LessOrEqual(t, f.provider.MaxInFlight(), 3)
	assert.Len(t, f.provider.Calls(), 36)
}

func TestSync_ExplicitEntities(t *testing.T) {
	f := newFixture(t, 3)
	f.manifest.Seed(f.checks, nil, checkpoint.Map{
		{Entity: f.checks[0].Key(), Category: model.CategoryOutage}: model.NewCheckpoint(at(-9000), at(-8000)),
	})

	_, err := f.orch.Sync(context.Background(), f.checks[1:2], Options{})
	require.NoError(t, err)

	for _, c := range f.provider.Calls() {
		assert.Equal(t, f.checks[1].Key(), c.Entity)
	}
	assert.False(t, f.checkpointOf(1, model.CategoryOutage).IsZero(), "untouched entities keep their checkpoints")
}

func TestSync_CorruptCheckpointsBootstrap(t *testing.T) {
	f := newFixture(t, 1)
	f.orch.manifest = &failingManifest{
		MemoryManifest: f.manifest,
		loadErr:        errors.StateCorrupt(errors.New("bad row")),
	}

	_, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.True(t, f.logger.HasWarning())
	assert.Equal(t, 1, f.manifest.CatalogSaves())
}

func TestSync_LoadFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.orch.manifest = &failingManifest{
		MemoryManifest: f.manifest,
		loadErr:        errors.New("database is locked"),
	}
	recorder := NewStateRecorder()
	f.orch.recorder = recorder

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.Error(t, err)

	assert.Equal(t, []string{"load_checkpoints", "failed"}, recorder.Path())
	assert.Empty(t, f.provider.Calls())
	assert.NotEmpty(t, report.RunID)
	require.Len(t, f.stats.records, 1)
	assert.False(t, f.stats.records[0].Success)
}

func TestSync_SaveFailureFailsPass(t *testing.T) {
	f := newFixture(t, 1)
	f.manifest.SetSaveError(errors.New("disk full"))

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 7, report.Delivered)
}

func TestSync_CancelledContext(t *testing.T) {
	f := newFixture(t, 2)
	f.manifest.Seed(f.checks, nil, checkpoint.Map{
		{Entity: f.checks[0].Key(), Category: model.CategoryOutage}: model.NewCheckpoint(at(-9000), at(-8000)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Sync(ctx, nil, Options{})
	require.Error(t, err)
	assert.Empty(t, f.sink.Points())
	assert.Equal(t, "failed", f.orch.GetStateName())
}

func TestSync_PanicRecovered(t *testing.T) {
	f := newFixture(t, 1)
	f.sink.FailWith(func([]model.MetricPoint) error { panic("boom") })

	_, err := f.orch.Sync(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.True(t, f.logger.HasError())
}

func TestSync_RecordsStats(t *testing.T) {
	f := newFixture(t, 2)

	report, err := f.orch.Sync(context.Background(), nil, Options{SummaryOnly: true})
	require.NoError(t, err)

	require.Len(t, f.stats.records, 1)
	rec := f.stats.records[0]
	assert.Equal(t, report.RunID, rec.RunID)
	assert.True(t, rec.Success)
	assert.True(t, rec.SummaryOnly)
	assert.Equal(t, 4, rec.Stats.FetchedUnits)
	assert.Equal(t, 6, rec.Stats.DeliveredPoints)
	assert.Equal(t, 4, rec.Stats.Committed)
}

func TestSync_MalformedRecordsCounted(t *testing.T) {
	f := newFixture(t, 1)
	f.provider.AppendResults(f.checks[0].Key(), model.CategoryResults,
		model.RawResult{Fields: map[string]any{"status": "up"}})

	report, err := f.orch.Sync(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Malformed)
}

// ==============================================================================
// Current Status
// ==============================================================================

func TestCurrentStatus(t *testing.T) {
	f := newFixture(t, 1)
	f.provider.SetCatalog([]model.Entity{
		{Kind: model.KindCheck, ID: 1, Name: "alpha", Status: "down", LastResponseTime: 250},
	}, []model.Entity{
		{Kind: model.KindTransaction, ID: 2, Name: "checkout", Status: "SUCCESSFUL"},
	}, nil)

	n, err := f.orch.PublishCurrentStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []model.MetricPoint{
		{Path: "checks.alpha.status", Value: 0, Timestamp: t0.Unix()},
		{Path: "checks.alpha.lastresponsetime", Value: 250, Timestamp: t0.Unix()},
		{Path: "tms.checkout.status", Value: 1, Timestamp: t0.Unix()},
	}, f.sink.Points())
	assert.Equal(t, 0, f.manifest.Saves(), "status snapshots never touch checkpoints")
}

func TestRefreshCatalog_ListError(t *testing.T) {
	f := newFixture(t, 1)
	f.provider.SetListError(errors.New("503"))

	_, err := f.orch.RefreshCatalog(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, f.manifest.CatalogSaves())
}

type failingManifest struct {
	*testutil.MemoryManifest
	loadErr error
}

func (m *failingManifest) LoadCheckpoints(ctx context.Context) (checkpoint.Map, error) {
	return nil, m.loadErr
}
