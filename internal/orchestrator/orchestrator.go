package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
	"github.com/livinlefevreloca/p2g/internal/normalize"
	"github.com/livinlefevreloca/p2g/internal/progress"
	"github.com/livinlefevreloca/p2g/internal/scheduler"
	"github.com/livinlefevreloca/p2g/internal/stats"
	"github.com/livinlefevreloca/p2g/internal/window"
)

// Deps are the collaborators of an Orchestrator. Provider, Sink and Manifest
// are required; the rest default to no-op or logging implementations.
type Deps struct {
	Provider Provider
	Sink     Sink
	Manifest Manifest
	Stats    stats.Writer
	Progress progress.Emitter
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Orchestrator runs sync passes. A pass walks
// load_checkpoints -> fetch -> normalize -> deliver -> commit_checkpoints -> done,
// or ends in failed on a run-scoped error. Passes must not run concurrently on
// the same Orchestrator.
type Orchestrator struct {
	// Dependencies
	provider Provider
	sink     Sink
	manifest Manifest
	stats    stats.Writer
	progress progress.Emitter
	logger   *slog.Logger
	now      func() time.Time

	// Pass identification
	runID string
	opts  Options

	// State management
	state State

	// Pass data, handed from one state to the next
	requested  []model.Entity
	entities   []model.Entity
	probes     map[int64]model.Probe
	store      *checkpoint.Store
	units      []unit
	fetched    []scheduler.Result[unit, []model.RawResult]
	deliveries []delivery
	acked      []delivery
	failed     map[model.EntityKey]bool

	// Phase timing
	timing PhaseTiming

	// Results
	report   *Report
	runStats *stats.RunStats
	err      error

	// Optional state recorder for testing
	recorder *StateRecorder
}

// New creates an orchestrator
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		provider: deps.Provider,
		sink:     deps.Sink,
		manifest: deps.Manifest,
		stats:    deps.Stats,
		progress: deps.Progress,
		logger:   deps.Logger,
		now:      deps.Clock,
		state:    &IdleState{},
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.stats == nil {
		o.stats = stats.NewLogWriter(o.logger)
	}
	if o.progress == nil {
		o.progress = progress.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// GetStateName returns the current state name (for testing)
func (o *Orchestrator) GetStateName() string {
	return o.state.Name()
}

// Sync runs one pass over entities, or over every manifest entity when
// entities is nil. Entity-scoped failures are listed in the report; the
// returned error is set only for run-scoped failures.
func (o *Orchestrator) Sync(ctx context.Context, entities []model.Entity, opts Options) (*Report, error) {
	o.reset(entities, opts)

	o.logger.Info("sync pass starting",
		"run_id", o.runID,
		"summary_only", opts.SummaryOnly)

	o.transitionTo(o.state.(*IdleState).ToLoadCheckpoints())
	o.run(ctx)

	o.report.FailedEntities = o.failedEntities()
	o.report.CompletedAt = o.now()
	o.writeStats(ctx)

	return o.report, o.err
}

func (o *Orchestrator) reset(entities []model.Entity, opts Options) {
	o.runID = uuid.NewString()
	o.opts = opts
	o.state = &IdleState{}
	o.requested = entities
	o.entities = nil
	o.probes = make(map[int64]model.Probe)
	o.store = checkpoint.New(nil)
	o.units = nil
	o.fetched = nil
	o.deliveries = nil
	o.acked = nil
	o.failed = make(map[model.EntityKey]bool)
	o.err = nil
	o.runStats = &stats.RunStats{}
	o.timing = PhaseTiming{StartedAt: o.now()}
	o.report = &Report{
		RunID:     o.runID,
		StartedAt: o.timing.StartedAt,
	}
}

// transitionTo performs a state transition and logs it
func (o *Orchestrator) transitionTo(newState State) {
	oldStateName := o.state.Name()
	o.state = newState

	// Record state for testing if recorder is present
	if o.recorder != nil {
		o.recorder.Record(newState)
	}

	o.logger.Info("state transition",
		"from", oldStateName,
		"to", newState.Name(),
		"run_id", o.runID)
}

// run is the pass loop
func (o *Orchestrator) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator panic recovered",
				"run_id", o.runID,
				"panic", r)
			o.err = errors.Newf("orchestrator panic: %v", r)
			o.transitionTo(&FailedState{})
			o.runFailed()
		}
	}()

	for {
		switch o.state.(type) {
		case *LoadCheckpointsState:
			o.runLoadCheckpoints(ctx)
		case *FetchState:
			o.runFetch(ctx)
		case *NormalizeState:
			o.runNormalize()
		case *DeliverState:
			o.runDeliver(ctx)
		case *CommitCheckpointsState:
			o.runCommitCheckpoints(ctx)
		case *DoneState:
			o.runDone()
			return
		case *FailedState:
			o.runFailed()
			return
		default:
			o.logger.Error("unknown state type",
				"state", fmt.Sprintf("%T", o.state),
				"run_id", o.runID)
			o.err = errors.Newf("unknown state %T", o.state)
			o.transitionTo(&FailedState{})
		}
	}
}

// runLoadCheckpoints seeds the checkpoint store and resolves the entity set.
// An empty store means the manifest was never initialized, so the catalog is
// refreshed from the provider first.
func (o *Orchestrator) runLoadCheckpoints(ctx context.Context) {
	state := o.state.(*LoadCheckpointsState)

	cps, err := o.loadCheckpoints(ctx)
	if err != nil {
		o.err = err
		o.transitionTo(state.ToFailed())
		return
	}
	o.store.Load(cps)

	if o.store.Len() == 0 {
		o.logger.Info("no checkpoints found, refreshing catalog", "run_id", o.runID)
		if _, err := o.RefreshCatalog(ctx); err != nil {
			o.err = errors.Wrap(err, "bootstrap catalog refresh")
			o.transitionTo(state.ToFailed())
			return
		}
		if cps, err = o.loadCheckpoints(ctx); err != nil {
			o.err = err
			o.transitionTo(state.ToFailed())
			return
		}
		o.store.Load(cps)
	}

	if o.requested != nil {
		o.entities = o.requested
	} else if o.entities, err = o.manifest.LoadEntities(ctx); err != nil {
		o.err = errors.Wrap(err, "load entities")
		o.transitionTo(state.ToFailed())
		return
	}

	probes, err := o.manifest.LoadProbes(ctx)
	if err != nil {
		o.err = errors.Wrap(err, "load probes")
		o.transitionTo(state.ToFailed())
		return
	}
	for _, p := range probes {
		o.probes[p.ID] = p
	}

	o.logger.Debug("checkpoints loaded",
		"run_id", o.runID,
		"checkpoints", o.store.Len(),
		"entities", len(o.entities),
		"probes", len(o.probes))

	o.transitionTo(state.ToFetch())
}

func (o *Orchestrator) loadCheckpoints(ctx context.Context) (checkpoint.Map, error) {
	cps, err := o.manifest.LoadCheckpoints(ctx)
	if errors.IsStateCorrupt(err) {
		o.logger.Warn("checkpoints unreadable, starting from empty state",
			"run_id", o.runID,
			"error", err)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load checkpoints")
	}
	return cps, nil
}

// runFetch resolves a window per unit and fans the fetches out
func (o *Orchestrator) runFetch(ctx context.Context) {
	state := o.state.(*FetchState)
	o.timing.FetchStartedAt = o.now()
	now := o.timing.FetchStartedAt

	var pending []unit
	for _, e := range o.entities {
		for _, cat := range e.Kind.Categories() {
			if o.opts.SummaryOnly && cat == model.CategoryResults {
				continue
			}
			u := unit{
				Entity:   e,
				Category: cat,
				Prior:    o.store.Get(e.Key(), cat),
			}
			u.Window = window.Resolve(u.Prior, cat.Spec().WithLookback(o.opts.Lookback), now, o.opts.MaxHorizon)
			if u.Window.Skip {
				o.logger.Debug("window skipped",
					"run_id", o.runID,
					"entity", e.Key().String(),
					"category", cat.String(),
					"from", u.Window.From)
				o.runStats.AddSkip()
				o.report.Skipped++
				continue
			}
			pending = append(pending, u)
		}
	}
	o.units = pending

	o.progress.EmitStage("fetch", fmt.Sprintf("%d units across %d entities", len(pending), len(o.entities)))

	cfg := scheduler.DefaultConfig()
	if o.opts.Concurrency > 0 {
		cfg.Concurrency = o.opts.Concurrency
	}
	cfg.OnProgress = func(done, total int) {
		o.progress.EmitProgress("fetch", done, total)
	}

	o.fetched = scheduler.RunAll(ctx, pending, cfg, func(ctx context.Context, u unit) ([]model.RawResult, error) {
		start := time.Now()
		raw, err := o.provider.Fetch(ctx, u.Entity.Kind, u.Category, u.Entity.ID, u.Window.From)
		o.runStats.AddFetch(time.Since(start), err)
		return raw, err
	})

	if err := ctx.Err(); err != nil {
		o.err = errors.Wrap(err, "fetch interrupted")
		o.transitionTo(state.ToFailed())
		return
	}

	o.transitionTo(state.ToNormalize())
}

// runNormalize filters every fetched batch against its prior checkpoint
func (o *Orchestrator) runNormalize() {
	state := o.state.(*NormalizeState)

	for _, res := range scheduler.Failed(o.fetched) {
		o.markFailed(res.Item, "fetch failed", res.Err)
	}

	deliveries := make([]delivery, 0, len(o.fetched))
	for _, res := range o.fetched {
		if res.Err != nil {
			continue
		}
		u := res.Item
		o.report.Fetched++

		batch := normalize.Filter(u.Category, u.Prior, res.Value)
		if batch.Malformed > 0 {
			o.logger.Warn("dropped records without timestamp",
				"run_id", o.runID,
				"entity", u.Entity.Key().String(),
				"category", u.Category.String(),
				"count", batch.Malformed)
			o.runStats.AddMalformed(batch.Malformed)
			o.report.Malformed += batch.Malformed
		}

		deliveries = append(deliveries, delivery{
			unit:   u,
			Batch:  batch,
			Points: normalize.Points(u.Entity, u.Category, batch, o.probes),
		})
	}

	sort.SliceStable(deliveries, func(i, j int) bool {
		a, b := deliveries[i].Entity.Key(), deliveries[j].Entity.Key()
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return deliveries[i].Category < deliveries[j].Category
	})
	o.deliveries = deliveries

	o.transitionTo(state.ToDeliver())
}

// runDeliver publishes each batch. A non-fatal sink error holds that unit's
// checkpoint; a fatal one stops delivery for the rest of the pass.
func (o *Orchestrator) runDeliver(ctx context.Context) {
	state := o.state.(*DeliverState)
	o.timing.DeliveryStartedAt = o.now()
	o.progress.EmitStage("deliver", fmt.Sprintf("%d batches", len(o.deliveries)))

	for i, d := range o.deliveries {
		if o.err == nil && ctx.Err() != nil {
			o.err = errors.Wrap(ctx.Err(), "delivery interrupted")
		}
		if o.err != nil {
			o.markFailed(d.unit, "delivery aborted", o.err)
			continue
		}

		if len(d.Points) > 0 {
			start := time.Now()
			err := o.sink.Publish(ctx, d.Points)
			o.runStats.AddPublish(len(d.Points), time.Since(start), err)

			if errors.IsSinkFatal(err) {
				o.err = errors.Wrapf(err, "deliver %s %s", d.Entity.Key(), d.Category)
				o.progress.EmitError("deliver", err)
				o.markFailed(d.unit, "sink rejected batch, aborting delivery", err)
				continue
			}
			if err != nil {
				o.markFailed(d.unit, "sink rejected batch", err)
				continue
			}
			o.report.Delivered += len(d.Points)
		}

		o.acked = append(o.acked, d)
		o.progress.EmitProgress("deliver", i+1, len(o.deliveries))
	}

	o.transitionTo(state.ToCommitCheckpoints())
}

// runCommitCheckpoints commits acknowledged batches and flushes the store once.
// The flush survives cancellation so delivered work is not re-sent needlessly.
func (o *Orchestrator) runCommitCheckpoints(ctx context.Context) {
	state := o.state.(*CommitCheckpointsState)

	committed := 0
	for _, d := range o.acked {
		if len(d.Batch.Results) == 0 {
			continue
		}
		if o.store.Commit(d.Entity.Key(), d.Category, d.Batch.Checkpoint) {
			committed++
		}
	}
	o.runStats.AddCommitted(committed)
	o.report.Committed = committed

	if o.store.Dirty() {
		if err := o.manifest.SaveCheckpoints(context.WithoutCancel(ctx), o.store.Snapshot()); err != nil {
			o.err = errors.CombineErrors(o.err, errors.Wrap(err, "save checkpoints"))
		}
	}

	if o.err != nil {
		o.transitionTo(state.ToFailed())
		return
	}
	o.transitionTo(state.ToDone())
}

// runDone handles successful completion
func (o *Orchestrator) runDone() {
	o.timing.CompletedAt = o.now()
	o.logger.Info("sync pass completed",
		"run_id", o.runID,
		"delivered", o.report.Delivered,
		"committed", o.report.Committed,
		"failed_entities", len(o.failed),
		"duration", o.timing.CompletedAt.Sub(o.timing.StartedAt))

	o.progress.EmitComplete(map[string]any{
		"delivered":       o.report.Delivered,
		"fetched":         o.report.Fetched,
		"skipped":         o.report.Skipped,
		"committed":       o.report.Committed,
		"failed entities": len(o.failed),
	})
}

// runFailed handles failure
func (o *Orchestrator) runFailed() {
	o.timing.CompletedAt = o.now()
	o.logger.Error("sync pass failed",
		"run_id", o.runID,
		"delivered", o.report.Delivered,
		"committed", o.report.Committed,
		"error", o.err)
	o.progress.EmitError("sync", o.err)
}

func (o *Orchestrator) markFailed(u unit, msg string, err error) {
	o.logger.Warn(msg,
		"run_id", o.runID,
		"entity", u.Entity.Key().String(),
		"name", u.Entity.Name,
		"category", u.Category.String(),
		"error", err)
	o.failed[u.Entity.Key()] = true
}

func (o *Orchestrator) failedEntities() []model.EntityKey {
	keys := make([]model.EntityKey, 0, len(o.failed))
	for k := range o.failed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

func (o *Orchestrator) writeStats(ctx context.Context) {
	rec := stats.RunRecord{
		RunID:       o.runID,
		StartTime:   o.report.StartedAt,
		EndTime:     o.report.CompletedAt,
		SummaryOnly: o.opts.SummaryOnly,
		Success:     o.err == nil,
		Stats:       o.runStats.Summary(),
	}
	if o.err != nil {
		rec.Error = o.err.Error()
	}
	if err := o.stats.WriteSyncRun(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("failed to record run statistics",
			"run_id", o.runID,
			"error", err)
	}
}
