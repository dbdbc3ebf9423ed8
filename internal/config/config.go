package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/livinlefevreloca/p2g/internal/cadence"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/graphite"
	"github.com/livinlefevreloca/p2g/internal/manifest"
	"github.com/livinlefevreloca/p2g/internal/pingdom"
	"github.com/livinlefevreloca/p2g/internal/window"
)

// EnvPrefix prefixes environment overrides, e.g. P2G_PINGDOM_API_TOKEN
const EnvPrefix = "P2G"

// Config represents the application configuration
type Config struct {
	State    manifest.Config `toml:"state"`
	Pingdom  pingdom.Config  `toml:"pingdom"`
	Graphite graphite.Config `toml:"graphite"`
	Sync     SyncConfig      `toml:"sync"`
	Logging  LoggingConfig   `toml:"logging"`
}

// SyncConfig tunes the sync pass
type SyncConfig struct {
	Concurrency       int           `toml:"concurrency"`
	MaxHorizon        time.Duration `toml:"max_horizon"`
	BootstrapLookback time.Duration `toml:"bootstrap_lookback"`
	SummaryOnly       bool          `toml:"summary_only"`

	// Cron expression the update command is run with; used by advice
	Schedule string `toml:"schedule"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		State:    manifest.DefaultConfig(),
		Pingdom:  pingdom.DefaultConfig(),
		Graphite: graphite.DefaultConfig(),
		Sync: SyncConfig{
			Concurrency:       5,
			MaxHorizon:        window.DefaultMaxHorizon,
			BootstrapLookback: time.Hour,
			Schedule:          cadence.DefaultSchedule,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile loads configuration from a TOML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.WithHint(errors.Newf("config file does not exist: %s", path),
			"pass the path of a TOML file with --config")
	}

	md, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Newf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. P2G_* environment variables
// 4. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	ApplyEnv(config, newEnv())
	return config, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyEnv overrides credentials and locations with values from v. Only keys
// that are set in v are applied.
func ApplyEnv(c *Config, v *viper.Viper) {
	strs := map[string]*string{
		"state.driver":          &c.State.Driver,
		"state.path":            &c.State.Path,
		"pingdom.api_token":     &c.Pingdom.APIToken,
		"pingdom.app_key":       &c.Pingdom.AppKey,
		"pingdom.username":      &c.Pingdom.Username,
		"pingdom.password":      &c.Pingdom.Password,
		"pingdom.account_email": &c.Pingdom.AccountEmail,
		"pingdom.regex":         &c.Pingdom.Regex,
		"graphite.hostname":     &c.Graphite.Hostname,
		"graphite.auth":         &c.Graphite.Auth,
		"graphite.prefix":       &c.Graphite.Prefix,
		"logging.level":         &c.Logging.Level,
		"logging.format":        &c.Logging.Format,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	if v.IsSet("pingdom.tags") {
		c.Pingdom.Tags = splitList(v.GetString("pingdom.tags"))
	}
	if v.IsSet("pingdom.include_transactions") {
		c.Pingdom.IncludeTransactions = v.GetBool("pingdom.include_transactions")
	}
	if v.IsSet("sync.summary_only") {
		c.Sync.SummaryOnly = v.GetBool("sync.summary_only")
	}
	if v.IsSet("sync.schedule") {
		c.Sync.Schedule = v.GetString("sync.schedule")
	}
	if v.IsSet("sync.concurrency") {
		c.Sync.Concurrency = v.GetInt("sync.concurrency")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.ValidateLocal(); err != nil {
		return err
	}
	if err := c.Pingdom.Validate(); err != nil {
		return err
	}
	return c.Graphite.Validate()
}

// ValidateLocal checks the sections that do not involve remote credentials.
// Commands that only read the manifest use it instead of Validate.
func (c *Config) ValidateLocal() error {
	if err := c.State.Validate(); err != nil {
		return err
	}

	if c.Sync.Concurrency <= 0 {
		return errors.Newf("sync concurrency must be positive, got %d", c.Sync.Concurrency)
	}
	if c.Sync.MaxHorizon <= 0 {
		return errors.Newf("sync max_horizon must be positive, got %s", c.Sync.MaxHorizon)
	}
	if c.Sync.BootstrapLookback <= 0 {
		return errors.Newf("sync bootstrap_lookback must be positive, got %s", c.Sync.BootstrapLookback)
	}
	if c.Sync.BootstrapLookback > c.Sync.MaxHorizon {
		return errors.Newf("sync bootstrap_lookback (%s) must not exceed max_horizon (%s)",
			c.Sync.BootstrapLookback, c.Sync.MaxHorizon)
	}

	if _, err := cadence.Parse(c.Sync.Schedule); err != nil {
		return errors.Wrap(err, "sync schedule")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return errors.Newf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return errors.Newf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
