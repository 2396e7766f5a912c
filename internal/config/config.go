// Package config provides configuration management for the processing pipeline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Pipeline defaults
const (
	// defaultUSDINR is used when prices.usdinr_rate is unset
	defaultUSDINR = 88.0
	// defaultPriceTTL is the in-memory quote cache lifetime when prices.cache_ttl is unset
	defaultPriceTTL = "15m"
	// defaultPriceTimeout bounds a single external price fetch
	defaultPriceTimeout = "10s"
	// defaultMappingFile matches the historical mapping sheet name
	defaultMappingFile = "futures mapping.csv"
	// defaultOutputDir is the root for run artifacts
	defaultOutputDir = "output"
	// defaultStateDir holds the price cache and latest run summary
	defaultStateDir = "state"
	// defaultACMTimezone stamps ACM trade/settle dates
	defaultACMTimezone = "Asia/Singapore"
	// defaultDashboardPort serves the run dashboard
	defaultDashboardPort = 8844
)

// defaultPasswords are tried in order against encrypted workbooks.
var defaultPasswords = []string{"Aurigin2017", "Aurigin2024", ""}

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Paths       PathsConfig       `yaml:"paths"`
	Decryption  DecryptionConfig  `yaml:"decryption"`
	Prices      PricesConfig      `yaml:"prices"`
	Recon       ReconConfig       `yaml:"recon"`
	ACM         ACMConfig         `yaml:"acm"`
	Accounts    []AccountConfig   `yaml:"accounts"`
	Email       EmailConfig       `yaml:"email"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// PathsConfig defines where inputs are found and artifacts are written.
type PathsConfig struct {
	MappingFile string `yaml:"mapping_file"`
	OutputDir   string `yaml:"output_dir"`
	StateDir    string `yaml:"state_dir"`
}

// DecryptionConfig lists candidate passwords for protected workbooks, tried
// in order. An empty string means "try without a password".
type DecryptionConfig struct {
	Passwords []string `yaml:"passwords"`
}

// PricesConfig defines the spot price service settings.
type PricesConfig struct {
	Provider     string             `yaml:"provider"` // yahoo | static
	USDINRRate   float64            `yaml:"usdinr_rate"`
	CacheTTL     string             `yaml:"cache_ttl"`
	FetchTimeout string             `yaml:"fetch_timeout"`
	RatePerSec   float64            `yaml:"rate_per_sec"` // outbound request budget
	Manual       map[string]float64 `yaml:"manual"`       // ticker -> price overrides
}

// ReconConfig defines reconciliation comparison settings.
type ReconConfig struct {
	// LotTolerance widens position equality; zero means exact match.
	LotTolerance float64 `yaml:"lot_tolerance"`
	// PriceTolerance is the relative tolerance for broker fill prices.
	PriceTolerance float64 `yaml:"price_tolerance"`
}

// ACMConfig defines the listed-trades output schema settings.
type ACMConfig struct {
	SchemaFile string `yaml:"schema_file"` // optional custom schema yaml
	Timezone   string `yaml:"timezone"`
}

// AccountConfig maps a counterparty code to a display name used as the
// output file prefix.
type AccountConfig struct {
	CPCode string `yaml:"cp_code"`
	Name   string `yaml:"name"`
}

// EmailConfig defines notification settings. The API key is normally
// supplied through SENDGRID_API_KEY in the environment.
type EmailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKey     string   `yaml:"api_key"`
	FromEmail  string   `yaml:"from_email"`
	FromName   string   `yaml:"from_name"`
	Recipients []string `yaml:"recipients"`
}

// DashboardConfig defines the report dashboard server settings.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ScheduleConfig defines the automated end-of-day run settings.
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Cron     string `yaml:"cron"` // standard 5-field cron spec
	Timezone string `yaml:"timezone"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every field at its default, usable
// without a config file on disk.
func Default() *Config {
	c := &Config{}
	_ = c.Validate()
	return c
}

// Validate fills defaults and checks that configured values are consistent.
func (c *Config) Validate() error {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn or error")
	}

	if c.Paths.MappingFile == "" {
		c.Paths.MappingFile = defaultMappingFile
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.StateDir == "" {
		c.Paths.StateDir = defaultStateDir
	}

	if len(c.Decryption.Passwords) == 0 {
		c.Decryption.Passwords = append([]string(nil), defaultPasswords...)
	}

	if c.Prices.Provider == "" {
		c.Prices.Provider = "yahoo"
	}
	if c.Prices.Provider != "yahoo" && c.Prices.Provider != "static" {
		return fmt.Errorf("prices.provider must be 'yahoo' or 'static'")
	}
	if c.Prices.USDINRRate == 0 {
		c.Prices.USDINRRate = defaultUSDINR
	}
	if c.Prices.USDINRRate <= 0 {
		return fmt.Errorf("prices.usdinr_rate must be > 0")
	}
	if c.Prices.CacheTTL == "" {
		c.Prices.CacheTTL = defaultPriceTTL
	}
	if _, err := time.ParseDuration(c.Prices.CacheTTL); err != nil {
		return fmt.Errorf("prices.cache_ttl invalid: %w", err)
	}
	if c.Prices.FetchTimeout == "" {
		c.Prices.FetchTimeout = defaultPriceTimeout
	}
	if _, err := time.ParseDuration(c.Prices.FetchTimeout); err != nil {
		return fmt.Errorf("prices.fetch_timeout invalid: %w", err)
	}
	if c.Prices.RatePerSec == 0 {
		c.Prices.RatePerSec = 4
	}
	if c.Prices.RatePerSec < 0 {
		return fmt.Errorf("prices.rate_per_sec must be >= 0")
	}

	if c.Recon.LotTolerance < 0 {
		return fmt.Errorf("recon.lot_tolerance must be >= 0")
	}
	if c.Recon.PriceTolerance == 0 {
		c.Recon.PriceTolerance = 1e-5
	}
	if c.Recon.PriceTolerance < 0 {
		return fmt.Errorf("recon.price_tolerance must be >= 0")
	}

	if c.ACM.Timezone == "" {
		c.ACM.Timezone = defaultACMTimezone
	}
	if _, err := time.LoadLocation(c.ACM.Timezone); err != nil {
		return fmt.Errorf("acm.timezone invalid: %w", err)
	}

	if len(c.Accounts) == 0 {
		c.Accounts = []AccountConfig{
			{CPCode: "ECASL0000094", Name: "AURIGIN"},
			{CPCode: "CITI00007707", Name: "WAFRA"},
		}
	}
	for _, a := range c.Accounts {
		if a.CPCode == "" || a.Name == "" {
			return fmt.Errorf("accounts entries require both cp_code and name")
		}
	}

	if c.Email.Enabled {
		if c.Email.FromEmail == "" {
			return fmt.Errorf("email.from_email is required when email is enabled")
		}
		if len(c.Email.Recipients) == 0 {
			return fmt.Errorf("email.recipients is required when email is enabled")
		}
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Cron) == "" {
		return fmt.Errorf("schedule.cron is required when schedule is enabled")
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultACMTimezone
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone invalid: %w", err)
	}

	return nil
}

// PriceCacheTTL returns the parsed quote cache lifetime.
func (c *Config) PriceCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Prices.CacheTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// PriceFetchTimeout returns the parsed per-fetch timeout.
func (c *Config) PriceFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Prices.FetchTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ACMLocation returns the timezone used for ACM timestamps.
func (c *Config) ACMLocation() *time.Location {
	loc, err := time.LoadLocation(c.ACM.Timezone)
	if err != nil {
		return time.FixedZone("SGT", 8*60*60)
	}
	return loc
}

// AccountName resolves a counterparty code to its display name; unknown
// codes return "Unknown".
func (c *Config) AccountName(cpCode string) string {
	for _, a := range c.Accounts {
		if a.CPCode == cpCode {
			return a.Name
		}
	}
	return "Unknown"
}
