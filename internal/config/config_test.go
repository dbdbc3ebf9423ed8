package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/manifest"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p2g.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const fullConfig = `
[state]
driver = "sqlite3"
path = "/var/lib/p2g/state.db"

[pingdom]
api_token = "tok"
app_key = "key"
username = "ops@example.com"
password = "pw"
account_email = "billing@example.com"
regex = "^prod-"
tags = ["web", "api"]
timeout = "10s"
results_limit = 500

[graphite]
hostname = "graphite.example.net"
auth = "123:glc_abc"
prefix = "monitoring"

[sync]
concurrency = 8
max_horizon = "168h"
bootstrap_lookback = "2h"
summary_only = true
schedule = "*/10 * * * *"

[logging]
level = "debug"
format = "text"
`

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.State.Driver != manifest.DriverFile {
		t.Errorf("expected driver file, got %s", cfg.State.Driver)
	}
	if cfg.State.Path != "manifest.json" {
		t.Errorf("expected path manifest.json, got %s", cfg.State.Path)
	}
	if cfg.Sync.Concurrency != 5 {
		t.Errorf("expected concurrency 5, got %d", cfg.Sync.Concurrency)
	}
	if cfg.Sync.MaxHorizon != 2764770*time.Second {
		t.Errorf("expected max_horizon 2764770s, got %v", cfg.Sync.MaxHorizon)
	}
	if cfg.Sync.BootstrapLookback != time.Hour {
		t.Errorf("expected bootstrap_lookback 1h, got %v", cfg.Sync.BootstrapLookback)
	}
	if cfg.Graphite.Prefix != "pingdom" {
		t.Errorf("expected prefix pingdom, got %s", cfg.Graphite.Prefix)
	}
	if cfg.Sync.Schedule != "*/5 * * * *" {
		t.Errorf("expected schedule */5 * * * *, got %s", cfg.Sync.Schedule)
	}
	if cfg.Pingdom.ResultsLimit != 1000 {
		t.Errorf("expected results_limit 1000, got %d", cfg.Pingdom.ResultsLimit)
	}
	if !cfg.Pingdom.IncludeTransactions {
		t.Error("expected transactions included by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.State.Driver != "sqlite3" {
		t.Errorf("expected driver sqlite3, got %s", cfg.State.Driver)
	}
	if cfg.Pingdom.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", cfg.Pingdom.Timeout)
	}
	if len(cfg.Pingdom.Tags) != 2 || cfg.Pingdom.Tags[1] != "api" {
		t.Errorf("expected tags [web api], got %v", cfg.Pingdom.Tags)
	}
	if cfg.Graphite.Prefix != "monitoring" {
		t.Errorf("expected prefix monitoring, got %s", cfg.Graphite.Prefix)
	}
	if cfg.Sync.MaxHorizon != 168*time.Hour {
		t.Errorf("expected max_horizon 168h, got %v", cfg.Sync.MaxHorizon)
	}
	if !cfg.Sync.SummaryOnly {
		t.Error("expected summary_only")
	}
	if cfg.Sync.Schedule != "*/10 * * * *" {
		t.Errorf("expected schedule */10 * * * *, got %s", cfg.Sync.Schedule)
	}

	// Defaults survive for keys the file leaves out
	if cfg.Pingdom.Retries != 5 {
		t.Errorf("expected default retries 5, got %d", cfg.Pingdom.Retries)
	}
	if cfg.Graphite.Concurrency != 5 {
		t.Errorf("expected default graphite concurrency 5, got %d", cfg.Graphite.Concurrency)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(errors.GetAllHints(err)) == 0 {
		t.Error("expected a hint on missing config")
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "[pingdom\napi_token = "))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFromFile_UnknownKey(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "[graphite]\nhost = \"typo.example.net\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "graphite.host") {
		t.Errorf("expected error to name graphite.host, got %v", err)
	}
}

func TestLoadConfig_NoPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("P2G_PINGDOM_API_TOKEN", "from-env")
	t.Setenv("P2G_GRAPHITE_AUTH", "999:envtoken")

	cfg, err := LoadConfig(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Pingdom.APIToken != "from-env" {
		t.Errorf("expected api_token from env, got %s", cfg.Pingdom.APIToken)
	}
	if cfg.Graphite.Auth != "999:envtoken" {
		t.Errorf("expected auth from env, got %s", cfg.Graphite.Auth)
	}
	if cfg.Pingdom.AppKey != "key" {
		t.Errorf("expected app_key from file, got %s", cfg.Pingdom.AppKey)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	v := viper.New()
	v.Set("pingdom.tags", "web, api,,db")
	v.Set("pingdom.include_transactions", false)
	v.Set("sync.concurrency", 2)
	v.Set("state.driver", "sqlite3")

	ApplyEnv(cfg, v)

	if got := strings.Join(cfg.Pingdom.Tags, "|"); got != "web|api|db" {
		t.Errorf("expected tags web|api|db, got %s", got)
	}
	if cfg.Pingdom.IncludeTransactions {
		t.Error("expected transactions disabled")
	}
	if cfg.Sync.Concurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", cfg.Sync.Concurrency)
	}
	if cfg.State.Driver != "sqlite3" {
		t.Errorf("expected driver sqlite3, got %s", cfg.State.Driver)
	}
	if cfg.Graphite.Prefix != "pingdom" {
		t.Errorf("expected untouched prefix, got %s", cfg.Graphite.Prefix)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFromFile(writeConfig(t, fullConfig))
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.State.Driver = "postgres" }, true},
		{"missing token", func(c *Config) { c.Pingdom.APIToken = "" }, true},
		{"bad auth", func(c *Config) { c.Graphite.Auth = "no-colon" }, true},
		{"zero concurrency", func(c *Config) { c.Sync.Concurrency = 0 }, true},
		{"lookback beyond horizon", func(c *Config) { c.Sync.BootstrapLookback = 200 * time.Hour }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad schedule", func(c *Config) { c.Sync.Schedule = "every 5 minutes" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateLocal_IgnoresCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateLocal(); err != nil {
		t.Errorf("expected defaults to pass local validation, got %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected full validation to require credentials")
	}
}
