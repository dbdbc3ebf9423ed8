package scheduler

import (
	"github.com/livinlefevreloca/p2g/internal/errors"
)

// DefaultConcurrency is the number of fetches allowed in flight at once
const DefaultConcurrency = 5

// Config bounds a RunAll invocation
type Config struct {
	// Maximum number of workers running at the same time
	Concurrency int `toml:"concurrency"`

	// Called after each item finishes, from the worker's goroutine
	OnProgress func(done, total int) `toml:"-"`
}

// DefaultConfig returns the upstream-friendly defaults
func DefaultConfig() Config {
	return Config{
		Concurrency: DefaultConcurrency,
	}
}

// validateConfig validates scheduler configuration and returns error if invalid
func validateConfig(config Config) error {
	if config.Concurrency <= 0 {
		return errors.Newf("Concurrency must be positive, got %d", config.Concurrency)
	}
	return nil
}
