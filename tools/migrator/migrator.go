package migrator

import (
	"database/sql"
	"io/fs"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

const schemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// RunMigrations applies all pending migrations found at the root of fsys to
// a SQLite database. SQLite serialises writers on the database file, so no
// separate migration lock is taken.
func RunMigrations(db *sql.DB, fsys fs.FS) error {
	if _, err := db.Exec(schemaTable); err != nil {
		return errors.Wrap(err, "failed to create schema table")
	}

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return errors.Wrap(err, "failed to load migrations")
	}

	applied, err := GetAppliedMigrations(db)
	if err != nil {
		return errors.Wrap(err, "failed to get applied migrations")
	}

	pending, err := plan(migrations, applied)
	if err != nil {
		return err
	}

	done := append([]int(nil), applied...)
	for _, m := range pending {
		if err := validateDependencies([]Migration{m}, done); err != nil {
			return err
		}
		if err := applyMigration(db, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d", m.Version)
		}
		done = append(done, m.Version)
	}
	return nil
}

// plan returns the migrations not yet recorded in applied. A pending
// migration older than the newest applied one means the history was
// rewritten and is refused.
func plan(migrations []Migration, applied []int) ([]Migration, error) {
	seen := make(map[int]bool, len(applied))
	newest := 0
	for _, v := range applied {
		seen[v] = true
		newest = max(newest, v)
	}

	var pending, stale []Migration
	for _, m := range migrations {
		if seen[m.Version] {
			continue
		}
		pending = append(pending, m)
		if m.Version < newest {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return pending, nil
	}

	for _, m := range pending {
		for _, dep := range m.Dependencies {
			if !seen[dep] && dep < newest {
				return nil, errors.Newf("migration %d depends on version %d which has not been applied", m.Version, dep)
			}
		}
	}
	return nil, errors.Newf("cannot apply migration %d: version %d is already applied (migrations must be applied in order)", stale[0].Version, newest)
}

// GetCurrentVersion returns the highest applied migration version, or 0 on
// a database that has never been migrated.
func GetCurrentVersion(db *sql.DB) (int, error) {
	applied, err := GetAppliedMigrations(db)
	if err != nil || len(applied) == 0 {
		return 0, err
	}
	return applied[len(applied)-1], nil
}

// GetAppliedMigrations returns the applied migration versions in ascending
// order.
func GetAppliedMigrations(db *sql.DB) ([]int, error) {
	var tables int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'",
	).Scan(&tables)
	if err != nil {
		return nil, err
	}
	if tables == 0 {
		return []int{}, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []int{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// validateDependencies checks that every dependency of migrations is among
// the applied versions.
func validateDependencies(migrations []Migration, applied []int) error {
	have := make(map[int]bool, len(applied))
	for _, v := range applied {
		have[v] = true
	}
	for _, m := range migrations {
		for _, dep := range m.Dependencies {
			if !have[dep] {
				return errors.Newf("migration %d depends on version %d which has not been applied", m.Version, dep)
			}
		}
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func runAndRecord(x execer, m Migration) error {
	if _, err := x.Exec(m.UpSQL); err != nil {
		return errors.Wrap(err, "failed to execute SQL")
	}
	if _, err := x.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}
	return nil
}

// applyMigration runs m and records its version, inside a transaction
// unless the file opted out with notransaction.
func applyMigration(db *sql.DB, m Migration) error {
	if m.NoTransaction {
		return runAndRecord(db, m)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := runAndRecord(tx, m); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}
