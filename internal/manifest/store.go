// Package manifest persists the entity catalog, probe list and checkpoints
// between sync passes. Two backends exist: a JSON document on disk that stays
// compatible with manifests written by earlier releases, and a sqlite database.
package manifest

import (
	"context"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/db"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
)

// Store is implemented by every manifest backend
type Store interface {
	LoadEntities(ctx context.Context) ([]model.Entity, error)
	LoadProbes(ctx context.Context) ([]model.Probe, error)
	LoadCheckpoints(ctx context.Context) (checkpoint.Map, error)

	// SaveCheckpoints replaces every stored checkpoint in one atomic write.
	// Checkpoints for entities missing from the catalog are dropped.
	SaveCheckpoints(ctx context.Context, cps checkpoint.Map) error

	// SaveCatalog replaces the catalog. Surviving entities keep their
	// checkpoints; removed entities lose them.
	SaveCatalog(ctx context.Context, entities []model.Entity, probes []model.Probe) error

	Close() error
}

// Backend drivers
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite3"
)

// Config selects and configures the manifest backend
type Config struct {
	Driver          string        `toml:"driver"`
	Path            string        `toml:"path"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	SkipMigrations  bool          `toml:"skip_migrations"`
}

// DefaultConfig keeps state in manifest.json in the working directory
func DefaultConfig() Config {
	return Config{
		Driver: DriverFile,
		Path:   "manifest.json",
	}
}

// Validate checks the backend selection
func (c Config) Validate() error {
	switch c.Driver {
	case DriverFile, DriverSQLite:
	default:
		return errors.WithHint(
			errors.Newf("unknown state driver %q", c.Driver),
			`use "file" or "sqlite3"`)
	}
	if c.Path == "" {
		return errors.New("state path is required")
	}
	return nil
}

// Open returns the backend selected by cfg
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Driver == DriverFile {
		return NewFileStore(cfg.Path, logger), nil
	}

	database, err := db.OpenWithConfig(db.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		SkipMigrations:  cfg.SkipMigrations,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open state database %s", cfg.Path)
	}
	return NewSQLStore(database, logger), nil
}
