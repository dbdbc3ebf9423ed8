package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/p2g/internal/config"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/graphite"
	"github.com/livinlefevreloca/p2g/internal/manifest"
	"github.com/livinlefevreloca/p2g/internal/orchestrator"
	"github.com/livinlefevreloca/p2g/internal/pingdom"
	"github.com/livinlefevreloca/p2g/internal/progress"
	"github.com/livinlefevreloca/p2g/internal/stats"
)

// app holds the components a command needs. Fields a command did not ask for
// are nil.
type app struct {
	cfg       *config.Config
	verbosity int
	logger    *slog.Logger
	pingdom   *pingdom.Client
	graphite  *graphite.Client
	store     manifest.Store
}

// needs selects the components built by newApp
type needs struct {
	graphite bool
	store    bool
}

func newApp(cmd *cobra.Command, n needs) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateLocal(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := cfg.Pingdom.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if n.graphite {
		if err := cfg.Graphite.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid configuration")
		}
	}

	logger := newLogger(cfg.Logging, verbosity, os.Stderr)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, verbosity: verbosity, logger: logger}

	if a.pingdom, err = pingdom.New(cfg.Pingdom, logger.With("component", "pingdom")); err != nil {
		return nil, err
	}
	if n.graphite {
		if a.graphite, err = graphite.New(cfg.Graphite, logger.With("component", "graphite")); err != nil {
			return nil, err
		}
	}
	if n.store {
		logger.Info("opening state", "driver", cfg.State.Driver, "path", cfg.State.Path)
		if a.store, err = manifest.Open(cfg.State, logger.With("component", "manifest")); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// orchestrator wires the pass engine. The sqlite backend also records run
// statistics in its sync_runs table.
func (a *app) orchestrator() *orchestrator.Orchestrator {
	var writer stats.Writer = stats.NewLogWriter(a.logger)
	if sqlStore, ok := a.store.(*manifest.SQLStore); ok {
		writer = stats.Multi{writer, stats.NewDBAdapter(sqlStore.DB())}
	}

	deps := orchestrator.Deps{
		Provider: a.pingdom,
		Manifest: a.store,
		Stats:    writer,
		Progress: progress.NewCLIEmitter(a.verbosity),
		Logger:   a.logger.With("component", "orchestrator"),
	}
	if a.graphite != nil {
		deps.Sink = a.graphite
	}
	return orchestrator.New(deps)
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *app) syncOptions(summaryOnly bool) orchestrator.Options {
	return orchestrator.Options{
		SummaryOnly: summaryOnly || a.cfg.Sync.SummaryOnly,
		Concurrency: a.cfg.Sync.Concurrency,
		MaxHorizon:  a.cfg.Sync.MaxHorizon,
		Lookback:    a.cfg.Sync.BootstrapLookback,
	}
}

// newLogger builds the process logger. Each -v lowers the level by one step,
// down to debug.
func newLogger(cfg config.LoggingConfig, verbosity int, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	for i := 0; i < verbosity && level > slog.LevelDebug; i++ {
		level -= 4
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
