package stats

import (
	"context"

	"github.com/livinlefevreloca/p2g/internal/db"
	"github.com/livinlefevreloca/p2g/internal/errors"
)

// DBAdapter writes run records to the sync_runs table
type DBAdapter struct {
	db interface {
		CreateSyncRun(ctx context.Context, run *db.SyncRun) error
	}
}

// NewDBAdapter creates a new database adapter
func NewDBAdapter(database *db.DB) *DBAdapter {
	return &DBAdapter{db: database}
}

// Helper functions to convert values to pointers
func intPtr(i int) *int {
	return &i
}

func float64Ptr(f float64) *float64 {
	return &f
}

// WriteSyncRun implements Writer for db.DB
func (a *DBAdapter) WriteSyncRun(ctx context.Context, rec RunRecord) error {
	s := rec.Stats

	run := &db.SyncRun{
		RunID:             rec.RunID,
		StartTime:         rec.StartTime,
		EndTime:           rec.EndTime,
		SummaryOnly:       rec.SummaryOnly,
		Success:           rec.Success,
		FetchedUnits:      s.FetchedUnits,
		SkippedUnits:      s.SkippedUnits,
		FailedUnits:       s.FailedUnits,
		MalformedRecords:  s.MalformedRecords,
		DeliveredPoints:   s.DeliveredPoints,
		FailedPublishes:   s.FailedPublishes,
		Committed:         s.Committed,
		MinFetchLatency:   intPtr(int(s.MinFetchLatency.Microseconds())),
		MaxFetchLatency:   intPtr(int(s.MaxFetchLatency.Microseconds())),
		AvgFetchLatency:   float64Ptr(float64(s.AvgFetchLatency.Microseconds())),
		AvgPublishLatency: float64Ptr(float64(s.AvgPublishLatency.Microseconds())),
		MaxBatchSize:      intPtr(s.MaxBatchSize),
	}
	if rec.Error != "" {
		msg := rec.Error
		run.Error = &msg
	}

	if err := a.db.CreateSyncRun(ctx, run); err != nil {
		return errors.Wrapf(err, "write sync run %s", rec.RunID)
	}
	return nil
}
