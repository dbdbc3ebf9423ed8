package db

import "time"

// Entity is a row of the entities table
type Entity struct {
	Kind      string // 'check' or 'tm'
	ID        int64
	Name      string
	Hostname  string
	GroupName string
	UpdatedAt time.Time
}

// Probe is a row of the probes table
type Probe struct {
	ID         int64
	Name       string
	City       string
	CountryISO string
	Region     string
}

// Checkpoint is a row of the checkpoints table. Nil bounds are stored as NULL.
type Checkpoint struct {
	Kind         string
	EntityID     int64
	Category     string // 'results', 'outage' or 'performance'
	LatestSeen   *int64
	EarliestSeen *int64
}

// SyncRun records the outcome and statistics of one sync pass
type SyncRun struct {
	RunID             string
	StartTime         time.Time
	EndTime           time.Time
	SummaryOnly       bool
	Success           bool
	Error             *string
	FetchedUnits      int
	SkippedUnits      int
	FailedUnits       int
	MalformedRecords  int
	DeliveredPoints   int
	FailedPublishes   int
	Committed         int
	MinFetchLatency   *int // microseconds
	MaxFetchLatency   *int
	AvgFetchLatency   *float64
	AvgPublishLatency *float64
	MaxBatchSize      *int
}
