package pingdom

import (
	"regexp"
	"time"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

// Default configuration values
const (
	DefaultBaseURL           = "https://api.pingdom.com/api/3.1"
	DefaultLegacyBaseURL     = "https://api.pingdom.com/api/2.1"
	DefaultTimeout           = 30 * time.Second
	DefaultRetries           = 5
	DefaultResultsLimit      = 1000
	DefaultResultsMaxPages   = 1
	DefaultRequestsPerMinute = 600
	DefaultNameRegex         = "^.*$"
)

// Config holds Pingdom API credentials and client tuning
type Config struct {
	// Bearer token for the 3.1 API
	APIToken string `toml:"api_token"`

	// Credentials for the 2.1 API, which still serves transaction monitors
	AppKey       string `toml:"app_key"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	AccountEmail string `toml:"account_email"`

	// Catalog filters
	Regex string   `toml:"regex"`
	Tags  []string `toml:"tags"`

	BaseURL             string        `toml:"base_url"`
	LegacyBaseURL       string        `toml:"legacy_base_url"`
	Timeout             time.Duration `toml:"timeout"`
	Retries             int           `toml:"retries"`
	RequestsPerMinute   int           `toml:"requests_per_minute"`
	IncludeTransactions bool          `toml:"include_transactions"`
	ResultsLimit        int           `toml:"results_limit"`
	ResultsMaxPages     int           `toml:"results_max_pages"`
}

// DefaultConfig returns a config with production endpoints and limits
func DefaultConfig() Config {
	return Config{
		Regex:               DefaultNameRegex,
		BaseURL:             DefaultBaseURL,
		LegacyBaseURL:       DefaultLegacyBaseURL,
		Timeout:             DefaultTimeout,
		Retries:             DefaultRetries,
		RequestsPerMinute:   DefaultRequestsPerMinute,
		IncludeTransactions: true,
		ResultsLimit:        DefaultResultsLimit,
		ResultsMaxPages:     DefaultResultsMaxPages,
	}
}

// Validate checks credentials and limits
func (c Config) Validate() error {
	if c.APIToken == "" {
		return errors.WithHint(errors.New("pingdom api_token is required"),
			"set [pingdom] api_token or P2G_PINGDOM_API_TOKEN")
	}
	if c.IncludeTransactions {
		if c.AppKey == "" || c.Username == "" || c.Password == "" {
			return errors.WithHint(
				errors.New("pingdom app_key, username and password are required for transaction monitors"),
				"set include_transactions = false to sync checks only")
		}
	}
	if _, err := regexp.Compile(c.Regex); err != nil {
		return errors.Wrapf(err, "invalid pingdom regex %q", c.Regex)
	}
	if c.BaseURL == "" || c.LegacyBaseURL == "" {
		return errors.New("pingdom base urls must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.Newf("pingdom timeout must be positive, got %s", c.Timeout)
	}
	if c.Retries < 0 {
		return errors.Newf("pingdom retries must be >= 0, got %d", c.Retries)
	}
	if c.RequestsPerMinute <= 0 {
		return errors.Newf("pingdom requests_per_minute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.ResultsLimit <= 0 || c.ResultsLimit > DefaultResultsLimit {
		return errors.Newf("pingdom results_limit must be between 1 and %d, got %d", DefaultResultsLimit, c.ResultsLimit)
	}
	if c.ResultsMaxPages <= 0 {
		return errors.Newf("pingdom results_max_pages must be positive, got %d", c.ResultsMaxPages)
	}
	return nil
}
