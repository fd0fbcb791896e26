package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override the configuration file.
const (
	EnvCredentials   = "CREDENTIALS"
	EnvSmartyBaseURL = "SMARTY_BASE_URL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Smarty   SmartyConfig   `toml:"smarty"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Report   ReportConfig   `toml:"report"`
	Database DatabaseConfig `toml:"database"`
}

// SmartyConfig contains US Street API settings and the configured accounts.
type SmartyConfig struct {
	BaseURL      string             `toml:"base_url"`
	License      string             `toml:"license"`
	Match        string             `toml:"match"`
	Timeout      time.Duration      `toml:"timeout"`
	MonthlyQuota int                `toml:"monthly_quota"`
	Credentials  []CredentialConfig `toml:"credentials"`
}

// CredentialConfig is one Smarty account. Quota falls back to [SmartyConfig.MonthlyQuota].
type CredentialConfig struct {
	AuthID    string `toml:"auth_id"`
	AuthToken string `toml:"auth_token"`
	Quota     int    `toml:"quota"`
}

// DispatchConfig bounds concurrency and retries of a verification run.
type DispatchConfig struct {
	Workers              int           `toml:"workers"`
	RateLimit            float64       `toml:"rate_limit"`
	MaxAttempts          int           `toml:"max_attempts"`
	MaxCredentialRetries int           `toml:"max_credential_retries"`
	BackoffInitial       time.Duration `toml:"backoff_initial"`
	BackoffMax           time.Duration `toml:"backoff_max"`
	ExhaustedWait        time.Duration `toml:"exhausted_wait"`
	ErrorBudget          int           `toml:"error_budget"`
}

// CatalogConfig selects where mailbox addresses come from.
type CatalogConfig struct {
	Source    string  `toml:"source"` // atmb or file
	Path      string  `toml:"path"`
	BaseURL   string  `toml:"base_url"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	Path        string `toml:"path"`
	Format      string `toml:"format"`
	Summary     bool   `toml:"summary"`
	MetricsPath string `toml:"metrics_path"`
	MetricsAddr string `toml:"metrics_addr"` // serve /metrics during verify when set, e.g. "127.0.0.1:9108"
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads a TOML configuration file from the specified path on top of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment overrides. lookup is usually [os.LookupEnv].
//
// The raw CREDENTIALS value is returned so the caller can parse it with the credential pool's parser.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) (credentials string) {
	if v, ok := lookup(EnvSmartyBaseURL); ok && v != "" {
		c.Smarty.BaseURL = v
	}
	if v, ok := lookup(EnvCredentials); ok {
		credentials = v
	}
	return credentials
}

// Validate checks value ranges that would otherwise surface as confusing runtime behavior.
func (c *Config) Validate() error {
	switch {
	case c.Smarty.BaseURL == "":
		return fmt.Errorf("%w: smarty.base_url is empty", ErrInvalidConfig)
	case c.Smarty.MonthlyQuota <= 0:
		return fmt.Errorf("%w: smarty.monthly_quota must be positive", ErrInvalidConfig)
	case c.Smarty.Timeout <= 0:
		return fmt.Errorf("%w: smarty.timeout must be positive", ErrInvalidConfig)
	case c.Dispatch.Workers <= 0:
		return fmt.Errorf("%w: dispatch.workers must be positive", ErrInvalidConfig)
	case c.Dispatch.MaxAttempts <= 0:
		return fmt.Errorf("%w: dispatch.max_attempts must be positive", ErrInvalidConfig)
	case c.Dispatch.MaxCredentialRetries < 0:
		return fmt.Errorf("%w: dispatch.max_credential_retries must not be negative", ErrInvalidConfig)
	case c.Dispatch.ErrorBudget < 0:
		return fmt.Errorf("%w: dispatch.error_budget must not be negative", ErrInvalidConfig)
	}

	switch c.Catalog.Source {
	case "atmb":
	case "file":
		if c.Catalog.Path == "" {
			return fmt.Errorf("%w: catalog.path is required for file catalogs", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown catalog.source %q", ErrInvalidConfig, c.Catalog.Source)
	}

	switch c.Report.Format {
	case "csv", "json", "markdown", "txt":
	default:
		return fmt.Errorf("%w: unknown report.format %q", ErrInvalidConfig, c.Report.Format)
	}

	return nil
}
