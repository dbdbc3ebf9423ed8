package orchestrator

import (
	"context"
	"time"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/model"
)

// Provider is the monitoring API the pass reads from. Fetch returns the
// records of one category at or after since; failures that retrying cannot
// fix are marked with errors.ErrUpstreamFatal.
type Provider interface {
	ListChecks(ctx context.Context) ([]model.Entity, error)
	ListTransactions(ctx context.Context) ([]model.Entity, error)
	ListProbes(ctx context.Context) ([]model.Probe, error)
	Fetch(ctx context.Context, kind model.EntityKind, cat model.Category, id int64, since int64) ([]model.RawResult, error)
}

// Sink accepts metric points. Errors marked errors.ErrSinkFatal abort the
// remaining delivery of the pass.
type Sink interface {
	Publish(ctx context.Context, points []model.MetricPoint) error
}

// Manifest persists the catalog and checkpoints between passes
type Manifest interface {
	LoadEntities(ctx context.Context) ([]model.Entity, error)
	LoadProbes(ctx context.Context) ([]model.Probe, error)
	LoadCheckpoints(ctx context.Context) (checkpoint.Map, error)
	SaveCheckpoints(ctx context.Context, cps checkpoint.Map) error
	SaveCatalog(ctx context.Context, entities []model.Entity, probes []model.Probe) error
}

// Options tune a single pass
type Options struct {
	// Skip the raw results category of checks; only summaries are synced
	SummaryOnly bool

	// Maximum concurrent provider fetches
	Concurrency int

	// Oldest point a fetch may start from
	MaxHorizon time.Duration

	// Bootstrap lookback for axes that were never fetched
	Lookback time.Duration
}

// Report summarizes a pass. It is returned even when the pass fails.
type Report struct {
	RunID          string
	Delivered      int
	Fetched        int
	Skipped        int
	Malformed      int
	Committed      int
	FailedEntities []model.EntityKey
	StartedAt      time.Time
	CompletedAt    time.Time
}

// CatalogSummary counts what a catalog refresh stored
type CatalogSummary struct {
	Checks       int
	Transactions int
	Probes       int
}

// unit is one entity×category fetch. Prior is copied in before fan-out so
// workers never touch the checkpoint store.
type unit struct {
	Entity   model.Entity
	Category model.Category
	Prior    model.Checkpoint
	Window   model.Window
}

// delivery is a normalized unit waiting for the sink
type delivery struct {
	unit
	Batch  model.Batch
	Points []model.MetricPoint
}
