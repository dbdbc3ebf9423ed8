// Package stats accumulates per-run statistics for sync passes and writes
// them to the state database or the log.
package stats

import (
	"context"
	"log/slog"
	"time"
)

// Writer persists a finished run
type Writer interface {
	WriteSyncRun(ctx context.Context, rec RunRecord) error
}

// LogWriter writes run records as a structured log line. It is used when the
// state backend has no table for them.
type LogWriter struct {
	logger *slog.Logger
}

// NewLogWriter creates a writer that logs at info level
func NewLogWriter(logger *slog.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

// WriteSyncRun implements Writer
func (w *LogWriter) WriteSyncRun(_ context.Context, rec RunRecord) error {
	w.logger.Info("sync run stats",
		"run_id", rec.RunID,
		"success", rec.Success,
		"duration", rec.EndTime.Sub(rec.StartTime),
		"fetched", rec.Stats.FetchedUnits,
		"skipped", rec.Stats.SkippedUnits,
		"failed", rec.Stats.FailedUnits,
		"malformed", rec.Stats.MalformedRecords,
		"delivered", rec.Stats.DeliveredPoints,
		"committed", rec.Stats.Committed,
		"avg_fetch", rec.Stats.AvgFetchLatency,
		"max_fetch", rec.Stats.MaxFetchLatency)
	return nil
}

// Multi fans a record out to several writers and returns the first error
type Multi []Writer

// WriteSyncRun implements Writer
func (m Multi) WriteSyncRun(ctx context.Context, rec RunRecord) error {
	var first error
	for _, w := range m {
		if err := w.WriteSyncRun(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Helper functions for min/max/avg calculations

func calculateMinMaxAvgInt(values []int) (min, max, avg int) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	min = values[0]
	max = values[0]
	sum := 0

	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	avg = sum / len(values)
	return min, max, avg
}

func calculateMinMaxAvgDuration(values []time.Duration) (min, max, avg time.Duration) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	min = values[0]
	max = values[0]
	var sum time.Duration

	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	avg = sum / time.Duration(len(values))
	return min, max, avg
}
