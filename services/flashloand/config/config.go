package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":8087"
	defaultDataDir       = "data/flashloand"
	defaultJournalDriver = "sqlite"
	defaultJournalDSN    = "file:flashloand-journal.db?cache=shared"
)

// Config captures the runtime settings for the flash-liquidity daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	DataDir       string          `yaml:"data_dir"`
	GenesisPath   string          `yaml:"genesis"`
	Paused        bool            `yaml:"paused"`
	Journal       JournalConfig   `yaml:"journal"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Callback      CallbackConfig  `yaml:"callback"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// JournalConfig selects the SQL backend for operation history.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret       string        `yaml:"hmac_secret"`
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
	ClockSkew        time.Duration `yaml:"clock_skew"`
	RequireSignature bool          `yaml:"require_signature"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// OracleConfig lists the price sources in priority order: Hermes first, then
// the manual override when a price is set.
type OracleConfig struct {
	HermesEndpoint string        `yaml:"hermes_endpoint"`
	FeedID         string        `yaml:"feed_id"`
	Timeout        time.Duration `yaml:"timeout"`
	ManualPrice    int64         `yaml:"manual_price"`
	ManualExpo     int32         `yaml:"manual_expo"`
}

// CallbackConfig points post-borrow notifications at a webhook.
type CallbackConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads the YAML configuration from disk, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv lets deployments keep secrets out of the config file.
func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FLASHLOAND_HMAC_SECRET"); ok {
		cfg.Auth.HMACSecret = v
	}
	if v, ok := lookup("FLASHLOAND_CALLBACK_SECRET"); ok {
		cfg.Callback.Secret = v
	}
	if v, ok := lookup("FLASHLOAND_JOURNAL_DSN"); ok {
		cfg.Journal.DSN = v
	}
	if v, ok := lookup("FLASHLOAND_ENV"); ok {
		cfg.Environment = v
	}
	if v, ok := lookup("FLASHLOAND_PAUSED"); ok {
		paused, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FLASHLOAND_PAUSED: %w", err)
		}
		cfg.Paused = paused
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)

	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = defaultJournalDriver
	}
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	if cfg.Journal.DSN == "" && cfg.Journal.Driver == defaultJournalDriver {
		cfg.Journal.DSN = defaultJournalDSN
	}

	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}

	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}

	cfg.Oracle.HermesEndpoint = strings.TrimRight(strings.TrimSpace(cfg.Oracle.HermesEndpoint), "/")
	cfg.Oracle.FeedID = strings.TrimSpace(cfg.Oracle.FeedID)
	if cfg.Oracle.Timeout <= 0 {
		cfg.Oracle.Timeout = 3 * time.Second
	}

	cfg.Callback.URL = strings.TrimSpace(cfg.Callback.URL)
	cfg.Callback.Secret = strings.TrimSpace(cfg.Callback.Secret)
	if cfg.Callback.Timeout <= 0 {
		cfg.Callback.Timeout = 5 * time.Second
	}

	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if cfg.GenesisPath == "" {
		return fmt.Errorf("genesis path is required")
	}
	switch cfg.Journal.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("journal: unsupported driver %q", cfg.Journal.Driver)
	}
	if cfg.Journal.DSN == "" {
		return fmt.Errorf("journal: dsn is required for %s", cfg.Journal.Driver)
	}
	if len(cfg.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth: hmac_secret must be at least 32 bytes")
	}
	if (cfg.Oracle.HermesEndpoint == "") != (cfg.Oracle.FeedID == "") {
		return fmt.Errorf("oracle: hermes_endpoint and feed_id must be set together")
	}
	if cfg.Oracle.HermesEndpoint == "" && cfg.Oracle.ManualPrice == 0 {
		return fmt.Errorf("oracle: configure hermes or a manual price")
	}
	if cfg.Callback.URL != "" && cfg.Callback.Secret == "" {
		return fmt.Errorf("callback: secret is required when url is set")
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	return nil
}
