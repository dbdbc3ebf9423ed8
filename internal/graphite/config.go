package graphite

import (
	"regexp"
	"time"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

// Default configuration values
const (
	DefaultPrefix      = "pingdom"
	DefaultScheme      = "https"
	DefaultConcurrency = 5
	DefaultTimeout     = 30 * time.Second
	DefaultRetries     = 5
)

var authPattern = regexp.MustCompile(`^\w+:[\w.-]+$`)

// Config holds the hosted Graphite endpoint and delivery tuning
type Config struct {
	Hostname    string        `toml:"hostname"`
	Auth        string        `toml:"auth"` // user:token
	Prefix      string        `toml:"prefix"`
	Scheme      string        `toml:"scheme"`
	Concurrency int           `toml:"concurrency"`
	Timeout     time.Duration `toml:"timeout"`
	Retries     int           `toml:"retries"`
}

// DefaultConfig returns a config with the stock prefix and limits
func DefaultConfig() Config {
	return Config{
		Prefix:      DefaultPrefix,
		Scheme:      DefaultScheme,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		Retries:     DefaultRetries,
	}
}

// Validate checks the endpoint and credentials
func (c Config) Validate() error {
	if c.Hostname == "" {
		return errors.WithHint(errors.New("graphite hostname is required"),
			"set [graphite] hostname, e.g. graphite-prod-01-eu-west-0.grafana.net")
	}
	if !authPattern.MatchString(c.Auth) {
		return errors.WithHint(errors.New("graphite auth must look like user:token"),
			"set [graphite] auth or P2G_GRAPHITE_AUTH")
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return errors.Newf("graphite scheme must be http or https, got %q", c.Scheme)
	}
	if c.Concurrency <= 0 {
		return errors.Newf("graphite concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Timeout <= 0 {
		return errors.Newf("graphite timeout must be positive, got %s", c.Timeout)
	}
	if c.Retries < 0 {
		return errors.Newf("graphite retries must be >= 0, got %d", c.Retries)
	}
	return nil
}
