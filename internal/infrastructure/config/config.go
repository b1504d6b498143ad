// Package config loads service configuration from config.toml and VB_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	Database  DatabaseConfig
	Custody   CustodyConfig
	Ledger    LedgerConfig
	Telemetry TelemetryConfig
	HTTP      HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds the operation journal connection settings
type DatabaseConfig struct {
	Driver          string // sqlite, postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// CustodyConfig holds custodian settings
type CustodyConfig struct {
	Address          string // the custodian's own account
	Owner            string // account allowed to change settings; empty disables administration
	DefaultMinShares decimal.Decimal
}

// LedgerConfig seeds the in-memory ledger at startup
type LedgerConfig struct {
	Tokens   []TokenSeed   `mapstructure:"tokens"`
	Vaults   []VaultSeed   `mapstructure:"vaults"`
	Balances []BalanceSeed `mapstructure:"balances"`
}

// TokenSeed deploys a token
type TokenSeed struct {
	Address      string `mapstructure:"address"`
	Symbol       string `mapstructure:"symbol"`
	Decimals     int32  `mapstructure:"decimals"`
	SoftFailures bool   `mapstructure:"soft_failures"`
}

// VaultSeed deploys a pooled vault
type VaultSeed struct {
	Address      string   `mapstructure:"address"`
	Denomination string   `mapstructure:"denomination"`
	Shares       string   `mapstructure:"shares"`
	Holdings     []string `mapstructure:"holdings"`
}

// BalanceSeed mints an initial balance
type BalanceSeed struct {
	Token  string `mapstructure:"token"`
	Holder string `mapstructure:"holder"`
	Amount string `mapstructure:"amount"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // e.g. localhost:4317
	SamplingRatio     float64 // 0.0 to 1.0
	ServiceName       string
	Insecure          bool // plaintext gRPC, development only
	MetricInterval    time.Duration
	ExportLogs        bool // bridge zap entries to the collector
	ProfilingEnabled  bool
	ProfilingServer   string // Pyroscope server, e.g. http://localhost:4040
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
	// TokenSecret enables bearer-token caller authentication (HS256)
	TokenSecret string
	TokenIssuer string
}

// Load reads config.toml from the working directory, ./config or /app and
// applies VB_ environment overrides (e.g. VB_DATABASE_DSN). Missing files
// are fine; built-in defaults fill the gaps.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")
	return load(v)
}

// LoadFile reads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("VB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			SlowQuery:       v.GetDuration("database.slow_query"),
		},
		Custody: CustodyConfig{
			Address: v.GetString("custody.address"),
			Owner:   v.GetString("custody.owner"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricInterval:    v.GetDuration("telemetry.metric_interval"),
			ExportLogs:        v.GetBool("telemetry.export_logs"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TokenSecret:     v.GetString("http.token_secret"),
			TokenIssuer:     v.GetString("http.token_issuer"),
		},
	}

	if raw := strings.TrimSpace(v.GetString("custody.default_min_shares")); raw != "" {
		minShares, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("custody.default_min_shares: %w", err)
		}
		cfg.Custody.DefaultMinShares = minShares
	}

	if err := v.UnmarshalKey("ledger", &cfg.Ledger); err != nil {
		return nil, fmt.Errorf("ledger seed: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "vaultbridge"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "vaultbridge.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.SlowQuery == 0 {
		cfg.Database.SlowQuery = 200 * time.Millisecond
	}
	if cfg.Custody.DefaultMinShares.IsZero() {
		cfg.Custody.DefaultMinShares = decimal.NewFromInt(1)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.MetricInterval == 0 {
		cfg.Telemetry.MetricInterval = 30 * time.Second
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
}

// Validate checks settings that cannot be defaulted
func (c *Config) Validate() error {
	if c.Custody.Address == "" {
		return fmt.Errorf("custody.address is required")
	}
	if _, err := valueobject.ParseAddress(c.Custody.Address); err != nil {
		return fmt.Errorf("custody.address: %w", err)
	}
	if c.Custody.Owner != "" {
		if _, err := valueobject.ParseAddress(c.Custody.Owner); err != nil {
			return fmt.Errorf("custody.owner: %w", err)
		}
	}
	if !c.Custody.DefaultMinShares.IsPositive() {
		return fmt.Errorf("custody.default_min_shares must be positive, got %s", c.Custody.DefaultMinShares)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServer == "" {
		return fmt.Errorf("telemetry.profiling_server is required when profiling is enabled")
	}

	if c.HTTP.TokenSecret != "" && len(c.HTTP.TokenSecret) < 32 {
		return fmt.Errorf("http.token_secret must be at least 32 bytes")
	}
	if c.IsProduction() && c.HTTP.TokenSecret == "" {
		return fmt.Errorf("http.token_secret is required in production")
	}

	for i, seed := range c.Ledger.Balances {
		if _, err := decimal.NewFromString(seed.Amount); err != nil {
			return fmt.Errorf("ledger.balances[%d].amount: %w", i, err)
		}
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
