package db

import (
	"context"
	"database/sql"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

const syncRunColumns = `
	run_id, start_time, end_time, summary_only, success, error,
	fetched_units, skipped_units, failed_units, malformed_records,
	delivered_points, failed_publishes, committed,
	min_fetch_latency, max_fetch_latency, avg_fetch_latency,
	avg_publish_latency, max_batch_size
`

// CreateSyncRun inserts a sync run record
func (db *DB) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	query := `INSERT INTO sync_runs (` + syncRunColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		run.RunID,
		run.StartTime,
		run.EndTime,
		run.SummaryOnly,
		run.Success,
		run.Error,
		run.FetchedUnits,
		run.SkippedUnits,
		run.FailedUnits,
		run.MalformedRecords,
		run.DeliveredPoints,
		run.FailedPublishes,
		run.Committed,
		run.MinFetchLatency,
		run.MaxFetchLatency,
		run.AvgFetchLatency,
		run.AvgPublishLatency,
		run.MaxBatchSize,
	)

	return err
}

// GetSyncRun retrieves a sync run by ID
func (db *DB) GetSyncRun(ctx context.Context, runID string) (*SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE run_id = ?`

	run, err := scanSyncRun(db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// ListSyncRuns returns the most recent runs, newest first
func (db *DB) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs ORDER BY start_time DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list sync runs")
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row rowScanner) (*SyncRun, error) {
	run := &SyncRun{}
	err := row.Scan(
		&run.RunID,
		&run.StartTime,
		&run.EndTime,
		&run.SummaryOnly,
		&run.Success,
		&run.Error,
		&run.FetchedUnits,
		&run.SkippedUnits,
		&run.FailedUnits,
		&run.MalformedRecords,
		&run.DeliveredPoints,
		&run.FailedPublishes,
		&run.Committed,
		&run.MinFetchLatency,
		&run.MaxFetchLatency,
		&run.AvgFetchLatency,
		&run.AvgPublishLatency,
		&run.MaxBatchSize,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
