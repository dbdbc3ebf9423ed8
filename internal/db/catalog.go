package db

import (
	"context"
	"fmt"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

// ReplaceCatalog makes the entities and probes tables match the given
// catalog in one transaction. Entities that disappeared are deleted together
// with their checkpoints; surviving entities keep theirs.
func (db *DB) ReplaceCatalog(ctx context.Context, entities []Entity, probes []Probe) error {
	return db.WithTransaction(ctx, func(tx *Tx) error {
		existing, err := tx.entityKeys(ctx)
		if err != nil {
			return err
		}

		keep := make(map[string]bool, len(entities))
		for _, e := range entities {
			keep[entityKey(e.Kind, e.ID)] = true
		}

		for key, e := range existing {
			if keep[key] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE kind = ? AND id = ?`, e.Kind, e.ID); err != nil {
				return errors.Wrapf(err, "delete entity %s", key)
			}
		}

		upsert := `
			INSERT INTO entities (kind, id, name, hostname, group_name, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (kind, id) DO UPDATE SET
				name = excluded.name,
				hostname = excluded.hostname,
				group_name = excluded.group_name,
				updated_at = excluded.updated_at
		`
		for _, e := range entities {
			if _, err := tx.ExecContext(ctx, upsert, e.Kind, e.ID, e.Name, e.Hostname, e.GroupName); err != nil {
				return errors.Wrapf(err, "upsert entity %s", entityKey(e.Kind, e.ID))
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM probes`); err != nil {
			return errors.Wrap(err, "clear probes")
		}
		for _, p := range probes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO probes (id, name, city, country_iso, region) VALUES (?, ?, ?, ?, ?)`,
				p.ID, p.Name, p.City, p.CountryISO, p.Region)
			if err != nil {
				return errors.Wrapf(err, "insert probe %d", p.ID)
			}
		}
		return nil
	})
}

func (tx *Tx) entityKeys(ctx context.Context) (map[string]Entity, error) {
	rows, err := tx.QueryContext(ctx, `SELECT kind, id FROM entities`)
	if err != nil {
		return nil, errors.Wrap(err, "list entity keys")
	}
	defer rows.Close()

	keys := make(map[string]Entity)
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Kind, &e.ID); err != nil {
			return nil, err
		}
		keys[entityKey(e.Kind, e.ID)] = e
	}
	return keys, rows.Err()
}

func entityKey(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// ListEntities returns every entity ordered by kind and id
func (db *DB) ListEntities(ctx context.Context) ([]Entity, error) {
	query := `
		SELECT kind, id, name, hostname, group_name, updated_at
		FROM entities
		ORDER BY kind, id
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list entities")
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Kind, &e.ID, &e.Name, &e.Hostname, &e.GroupName, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}

// ListProbes returns every probe ordered by id
func (db *DB) ListProbes(ctx context.Context) ([]Probe, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, city, country_iso, region FROM probes ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list probes")
	}
	defer rows.Close()

	var probes []Probe
	for rows.Next() {
		var p Probe
		if err := rows.Scan(&p.ID, &p.Name, &p.City, &p.CountryISO, &p.Region); err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return probes, nil
}
