package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/livinlefevreloca/p2g/internal/db"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/testutil"
)

// =============================================================================
// Test Helpers
// =============================================================================

// MockWriter records every run it is asked to write
type MockWriter struct {
	mu      sync.Mutex
	records []RunRecord
	err     error
}

func (m *MockWriter) WriteSyncRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// =============================================================================
// Accumulator Tests
// =============================================================================

// TestRunStats_Counters verifies every Add method lands in the summary
func TestRunStats_Counters(t *testing.T) {
	var s RunStats

	s.AddFetch(10*time.Millisecond, nil)
	s.AddFetch(30*time.Millisecond, nil)
	s.AddFetch(20*time.Millisecond, errors.New("boom"))
	s.AddSkip()
	s.AddMalformed(2)
	s.AddPublish(5, time.Millisecond, nil)
	s.AddPublish(3, time.Millisecond, errors.New("sink down"))
	s.AddCommitted(4)

	sum := s.Summary()

	if sum.FetchedUnits != 2 {
		t.Errorf("expected 2 fetched, got %d", sum.FetchedUnits)
	}
	if sum.FailedUnits != 1 {
		t.Errorf("expected 1 failed, got %d", sum.FailedUnits)
	}
	if sum.SkippedUnits != 1 {
		t.Errorf("expected 1 skipped, got %d", sum.SkippedUnits)
	}
	if sum.MalformedRecords != 2 {
		t.Errorf("expected 2 malformed, got %d", sum.MalformedRecords)
	}
	if sum.DeliveredPoints != 5 {
		t.Errorf("expected 5 delivered, got %d", sum.DeliveredPoints)
	}
	if sum.FailedPublishes != 1 {
		t.Errorf("expected 1 failed publish, got %d", sum.FailedPublishes)
	}
	if sum.Committed != 4 {
		t.Errorf("expected 4 committed, got %d", sum.Committed)
	}
	if sum.MinFetchLatency != 10*time.Millisecond || sum.MaxFetchLatency != 30*time.Millisecond {
		t.Errorf("unexpected fetch latency bounds: %v..%v", sum.MinFetchLatency, sum.MaxFetchLatency)
	}
	if sum.AvgFetchLatency != 20*time.Millisecond {
		t.Errorf("expected avg fetch 20ms, got %v", sum.AvgFetchLatency)
	}
	if sum.MaxBatchSize != 5 || sum.MinBatchSize != 3 || sum.AvgBatchSize != 4 {
		t.Errorf("unexpected batch sizes: %d/%d/%d", sum.MinBatchSize, sum.MaxBatchSize, sum.AvgBatchSize)
	}
}

// TestRunStats_Concurrent verifies concurrent fetch reports are all counted
func TestRunStats_Concurrent(t *testing.T) {
	var s RunStats
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddFetch(time.Millisecond, nil)
		}()
	}
	wg.Wait()

	if got := s.Summary().FetchedUnits; got != 50 {
		t.Errorf("expected 50 fetched, got %d", got)
	}
}

// TestCalculateMinMaxAvg_Integers verifies calculation for integers
func TestCalculateMinMaxAvg_Integers(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		min    int
		max    int
		avg    int
	}{
		{"empty", []int{}, 0, 0, 0},
		{"single", []int{5}, 5, 5, 5},
		{"multiple", []int{1, 5, 3, 9, 2}, 1, 9, 4},
		{"all same", []int{5, 5, 5}, 5, 5, 5},
		{"negative", []int{-5, -2, -8}, -8, -2, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max, avg := calculateMinMaxAvgInt(tt.values)
			if min != tt.min {
				t.Errorf("min: expected %d, got %d", tt.min, min)
			}
			if max != tt.max {
				t.Errorf("max: expected %d, got %d", tt.max, max)
			}
			if avg != tt.avg {
				t.Errorf("avg: expected %d, got %d", tt.avg, avg)
			}
		})
	}
}

// TestCalculateMinMaxAvg_Durations verifies calculation for durations
func TestCalculateMinMaxAvg_Durations(t *testing.T) {
	values := []time.Duration{1 * time.Millisecond, 5 * time.Millisecond, 3 * time.Millisecond, 9 * time.Millisecond, 2 * time.Millisecond}

	min, max, avg := calculateMinMaxAvgDuration(values)

	if min != 1*time.Millisecond {
		t.Errorf("min: expected 1ms, got %v", min)
	}
	if max != 9*time.Millisecond {
		t.Errorf("max: expected 9ms, got %v", max)
	}
	if avg != 4*time.Millisecond {
		t.Errorf("avg: expected 4ms, got %v", avg)
	}
}

// =============================================================================
// Writer Tests
// =============================================================================

// TestLogWriter verifies run records are logged with their counters
func TestLogWriter(t *testing.T) {
	logger := testutil.NewTestLogger()
	w := NewLogWriter(logger.Logger())

	err := w.WriteSyncRun(context.Background(), RunRecord{
		RunID:   "run-1",
		Success: true,
		Stats:   Summary{DeliveredPoints: 12},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logger.GetEntriesByLevel("INFO")
	if len(entries) != 1 {
		t.Fatalf("expected 1 info entry, got %d", len(entries))
	}
	if entries[0].Fields["run_id"] != "run-1" {
		t.Errorf("expected run_id field, got %v", entries[0].Fields["run_id"])
	}
	if entries[0].Fields["delivered"] != int64(12) {
		t.Errorf("expected delivered=12, got %v", entries[0].Fields["delivered"])
	}
}

// TestMulti_ReturnsFirstErrorButWritesAll verifies fan-out continues past a failure
func TestMulti_ReturnsFirstErrorButWritesAll(t *testing.T) {
	failing := &MockWriter{err: errors.New("disk full")}
	ok := &MockWriter{}

	err := Multi{failing, ok}.WriteSyncRun(context.Background(), RunRecord{RunID: "run-2"})

	if err == nil {
		t.Fatal("expected error from failing writer")
	}
	if len(ok.records) != 1 {
		t.Errorf("expected second writer to receive the record, got %d", len(ok.records))
	}
}

// TestDatabaseWrite_SyncRun verifies run records land in sync_runs
func TestDatabaseWrite_SyncRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	database := setupTestDB(t)
	adapter := NewDBAdapter(database)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	err := adapter.WriteSyncRun(context.Background(), RunRecord{
		RunID:     "run-3",
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		Success:   false,
		Error:     "sink fatal",
		Stats:     Summary{FetchedUnits: 3, DeliveredPoints: 7, MaxFetchLatency: 2 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	run, err := database.GetSyncRun(context.Background(), "run-3")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if run.DeliveredPoints != 7 || run.FetchedUnits != 3 {
		t.Errorf("unexpected counters: %+v", run)
	}
	if run.Error == nil || *run.Error != "sink fatal" {
		t.Errorf("expected error message to be stored, got %v", run.Error)
	}
	if run.MaxFetchLatency == nil || *run.MaxFetchLatency != 2000 {
		t.Errorf("expected max fetch latency in microseconds, got %v", run.MaxFetchLatency)
	}
}
