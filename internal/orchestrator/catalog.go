package orchestrator

import (
	"context"

	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
	"github.com/livinlefevreloca/p2g/internal/normalize"
)

// RefreshCatalog replaces the manifest catalog with the provider's current
// checks, transaction monitors and probes. Checkpoints of surviving entities
// are kept by the manifest.
func (o *Orchestrator) RefreshCatalog(ctx context.Context) (CatalogSummary, error) {
	checks, err := o.provider.ListChecks(ctx)
	if err != nil {
		return CatalogSummary{}, errors.Wrap(err, "list checks")
	}
	tms, err := o.provider.ListTransactions(ctx)
	if err != nil {
		return CatalogSummary{}, errors.Wrap(err, "list transaction monitors")
	}
	probes, err := o.provider.ListProbes(ctx)
	if err != nil {
		return CatalogSummary{}, errors.Wrap(err, "list probes")
	}

	entities := make([]model.Entity, 0, len(checks)+len(tms))
	entities = append(entities, checks...)
	entities = append(entities, tms...)

	if err := o.manifest.SaveCatalog(ctx, entities, probes); err != nil {
		return CatalogSummary{}, errors.Wrap(err, "save catalog")
	}

	summary := CatalogSummary{
		Checks:       len(checks),
		Transactions: len(tms),
		Probes:       len(probes),
	}
	o.logger.Info("catalog refreshed",
		"checks", summary.Checks,
		"transactions", summary.Transactions,
		"probes", summary.Probes)
	return summary, nil
}

// CurrentStatus builds status points for every live check and transaction
// monitor, stamped now. It reads no checkpoints and writes none.
func (o *Orchestrator) CurrentStatus(ctx context.Context) ([]model.MetricPoint, error) {
	checks, err := o.provider.ListChecks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list checks")
	}
	tms, err := o.provider.ListTransactions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list transaction monitors")
	}

	entities := append(append([]model.Entity(nil), checks...), tms...)
	return normalize.StatusPoints(entities, o.now().Unix()), nil
}

// PublishCurrentStatus sends the CurrentStatus snapshot to the sink and
// returns the number of points delivered
func (o *Orchestrator) PublishCurrentStatus(ctx context.Context) (int, error) {
	points, err := o.CurrentStatus(ctx)
	if err != nil {
		return 0, err
	}
	if err := o.sink.Publish(ctx, points); err != nil {
		return 0, errors.Wrap(err, "publish current status")
	}

	o.logger.Info("current status published", "points", len(points))
	return len(points), nil
}
