package manifest

import (
	"context"
	"log/slog"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/db"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
)

// SQLStore keeps the manifest in the state database
type SQLStore struct {
	db     *db.DB
	logger *slog.Logger
}

// NewSQLStore wraps an open, migrated database
func NewSQLStore(database *db.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     database,
		logger: logger,
	}
}

// DB exposes the underlying database for run statistics
func (s *SQLStore) DB() *db.DB {
	return s.db
}

// LoadEntities implements Store
func (s *SQLStore) LoadEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.ListEntities(ctx)
	if err != nil {
		return nil, err
	}

	entities := make([]model.Entity, 0, len(rows))
	for _, r := range rows {
		kind, ok := model.ParseEntityKind(r.Kind)
		if !ok {
			s.logger.Warn("skipping entity with unknown kind", "kind", r.Kind, "entity_id", r.ID)
			continue
		}
		entities = append(entities, model.Entity{
			Kind:     kind,
			ID:       r.ID,
			Name:     r.Name,
			Hostname: r.Hostname,
			Group:    r.GroupName,
		})
	}
	return entities, nil
}

// LoadProbes implements Store
func (s *SQLStore) LoadProbes(ctx context.Context) ([]model.Probe, error) {
	rows, err := s.db.ListProbes(ctx)
	if err != nil {
		return nil, err
	}

	probes := make([]model.Probe, len(rows))
	for i, r := range rows {
		probes[i] = model.Probe{
			ID:         r.ID,
			Name:       r.Name,
			City:       r.City,
			CountryISO: r.CountryISO,
			Region:     r.Region,
		}
	}
	return probes, nil
}

// LoadCheckpoints implements Store. Rows that do not decode are logged and
// skipped so their axes bootstrap again.
func (s *SQLStore) LoadCheckpoints(ctx context.Context) (checkpoint.Map, error) {
	rows, err := s.db.ListCheckpoints(ctx)
	if err != nil {
		return nil, err
	}

	m := make(checkpoint.Map, len(rows))
	for _, r := range rows {
		kind, okKind := model.ParseEntityKind(r.Kind)
		cat, okCat := model.ParseCategory(r.Category)
		if !okKind || !okCat {
			s.logger.Warn("skipping unreadable checkpoint",
				"kind", r.Kind,
				"entity_id", r.EntityID,
				"category", r.Category,
				"error", errors.StateCorrupt(errors.New("unknown kind or category")))
			continue
		}

		cp := model.Checkpoint{LatestSeen: r.LatestSeen, EarliestSeen: r.EarliestSeen}
		if cp.IsZero() {
			continue
		}
		m[checkpoint.Key{Entity: model.EntityKey{Kind: kind, ID: r.EntityID}, Category: cat}] = cp
	}
	return m, nil
}

// SaveCheckpoints implements Store
func (s *SQLStore) SaveCheckpoints(ctx context.Context, cps checkpoint.Map) error {
	rows := make([]db.Checkpoint, 0, len(cps))
	for k, cp := range cps {
		if cp.IsZero() {
			continue
		}
		rows = append(rows, db.Checkpoint{
			Kind:         k.Entity.Kind.String(),
			EntityID:     k.Entity.ID,
			Category:     k.Category.String(),
			LatestSeen:   cp.LatestSeen,
			EarliestSeen: cp.EarliestSeen,
		})
	}

	written, err := s.db.ReplaceCheckpoints(ctx, rows)
	if err != nil {
		return errors.Wrap(err, "save checkpoints")
	}
	if written < len(rows) {
		s.logger.Debug("dropped checkpoints for unknown entities", "count", len(rows)-written)
	}
	return nil
}

// SaveCatalog implements Store
func (s *SQLStore) SaveCatalog(ctx context.Context, entities []model.Entity, probes []model.Probe) error {
	entityRows := make([]db.Entity, len(entities))
	for i, e := range entities {
		entityRows[i] = db.Entity{
			Kind:      e.Kind.String(),
			ID:        e.ID,
			Name:      e.Name,
			Hostname:  e.Hostname,
			GroupName: e.Group,
		}
	}

	probeRows := make([]db.Probe, len(probes))
	for i, p := range probes {
		probeRows[i] = db.Probe{
			ID:         p.ID,
			Name:       p.Name,
			City:       p.City,
			CountryISO: p.CountryISO,
			Region:     p.Region,
		}
	}

	if err := s.db.ReplaceCatalog(ctx, entityRows, probeRows); err != nil {
		return errors.Wrap(err, "save catalog")
	}
	return nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	return s.db.Close()
}
