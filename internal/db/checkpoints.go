package db

import (
	"context"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

// ListCheckpoints returns every stored checkpoint
func (db *DB) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	query := `
		SELECT kind, entity_id, category, latest_seen, earliest_seen
		FROM checkpoints
		ORDER BY kind, entity_id, category
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list checkpoints")
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var c Checkpoint
		if err := rows.Scan(&c.Kind, &c.EntityID, &c.Category, &c.LatestSeen, &c.EarliestSeen); err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return checkpoints, nil
}

// ReplaceCheckpoints swaps the whole checkpoint set in one transaction.
// Rows for entities missing from the catalog are skipped. It returns the
// number of rows written.
func (db *DB) ReplaceCheckpoints(ctx context.Context, checkpoints []Checkpoint) (int, error) {
	written := 0
	err := db.WithTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
			return errors.Wrap(err, "clear checkpoints")
		}

		insert := `
			INSERT INTO checkpoints (kind, entity_id, category, latest_seen, earliest_seen)
			SELECT ?, ?, ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM entities WHERE kind = ? AND id = ?)
		`
		for _, c := range checkpoints {
			res, err := tx.ExecContext(ctx, insert,
				c.Kind, c.EntityID, c.Category, c.LatestSeen, c.EarliestSeen,
				c.Kind, c.EntityID)
			if err != nil {
				return errors.Wrapf(err, "insert checkpoint %s/%s", entityKey(c.Kind, c.EntityID), c.Category)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
