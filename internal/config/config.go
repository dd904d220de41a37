// Package config provides Viper-based configuration loading for the encounter
// engine.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
)

// ServerConfig holds the daemon's gRPC health endpoint settings.
type ServerConfig struct {
	// GRPCHost is the bind address for the health service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the health service.
	GRPCPort int `mapstructure:"grpc_port"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.GRPCHost, s.GRPCPort)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Enabled turns on summary persistence.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Sampling enables zap's sampler for high-volume encounter logs.
	Sampling bool `mapstructure:"sampling"`
}

// EngineConfig holds supervisor and encounter defaults.
type EngineConfig struct {
	// TickInterval is the wall-clock period between ticks.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// Step is the simulated time each tick advances.
	Step time.Duration `mapstructure:"step"`
	// GraceTicks is the default PRE_START countdown.
	GraceTicks int `mapstructure:"grace_ticks"`
	// TimeBudget is the default encounter time limit.
	TimeBudget time.Duration `mapstructure:"time_budget"`
	// NotifyInterval is the minimum spacing of non-terminal snapshots.
	NotifyInterval time.Duration `mapstructure:"notify_interval"`
	// LogWindow is the number of event lines carried in each snapshot.
	LogWindow int `mapstructure:"log_window"`
	// MaxEncounters caps concurrent encounters; 0 is unlimited.
	MaxEncounters int `mapstructure:"max_encounters"`
	// ScriptInstructionLimit bounds each behaviour script call.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// CatalogConfig locates the content tree.
type CatalogConfig struct {
	// Dir holds abilities/, monsters/, and scripts/behaviors/.
	Dir string `mapstructure:"dir"`
	// ReloadInterval polls Dir for changes; 0 disables polling.
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// SoakConfig drives the daemon's scenario soak runner.
type SoakConfig struct {
	// Enabled starts the runner.
	Enabled bool `mapstructure:"enabled"`
	// Dir holds scenario YAML; empty means <catalog.dir>/scenarios.
	Dir string `mapstructure:"dir"`
	// Scenarios restricts the rotation to these ids; empty runs all.
	Scenarios []string `mapstructure:"scenarios"`
	// Interval is how often the runner tops up running encounters.
	Interval time.Duration `mapstructure:"interval"`
	// Concurrency is the number of soak encounters kept running.
	Concurrency int `mapstructure:"concurrency"`
}

// TuningConfig is the balance-tuning snapshot loaded from configuration.
type TuningConfig struct {
	Global     float64            `mapstructure:"global"`
	PerAbility map[string]float64 `mapstructure:"per_ability"`
	Nightmare  float64            `mapstructure:"nightmare"`
}

// Tuning converts the configured values into a catalog tuning snapshot.
// The version is assigned by the store.
func (t TuningConfig) Tuning() catalog.Tuning {
	per := make(map[string]float64, len(t.PerAbility))
	for k, v := range t.PerAbility {
		per[k] = v
	}
	return catalog.Tuning{Global: t.Global, PerAbility: per, NightmareMultiplier: t.Nightmare}
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Soak     SoakConfig     `mapstructure:"soak"`
	Tuning   TuningConfig   `mapstructure:"tuning"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEngine(c.Engine); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCatalog(c.Catalog); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Soak.Enabled {
		if err := validateSoak(c.Soak); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := c.Tuning.Tuning().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.GRPCHost == "" {
		errs = append(errs, "server.grpc_host must not be empty")
	}
	if s.GRPCPort < 1 || s.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.grpc_port must be 1-65535, got %d", s.GRPCPort))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	if e.TickInterval <= 0 {
		errs = append(errs, "engine.tick_interval must be > 0")
	}
	if e.Step <= 0 {
		errs = append(errs, "engine.step must be > 0")
	}
	if e.GraceTicks < 0 {
		errs = append(errs, fmt.Sprintf("engine.grace_ticks must be >= 0, got %d", e.GraceTicks))
	}
	if e.TimeBudget <= 0 {
		errs = append(errs, "engine.time_budget must be > 0")
	}
	if e.NotifyInterval < 0 {
		errs = append(errs, "engine.notify_interval must not be negative")
	}
	if e.LogWindow < 1 {
		errs = append(errs, fmt.Sprintf("engine.log_window must be >= 1, got %d", e.LogWindow))
	}
	if e.MaxEncounters < 0 {
		errs = append(errs, fmt.Sprintf("engine.max_encounters must be >= 0, got %d", e.MaxEncounters))
	}
	if e.ScriptInstructionLimit < 0 {
		errs = append(errs, "engine.script_instruction_limit must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCatalog(c CatalogConfig) error {
	if c.Dir == "" {
		return errors.New("catalog.dir must not be empty")
	}
	if c.ReloadInterval < 0 {
		return errors.New("catalog.reload_interval must not be negative")
	}
	return nil
}

func validateSoak(s SoakConfig) error {
	var errs []string
	if s.Interval <= 0 {
		errs = append(errs, "soak.interval must be > 0")
	}
	if s.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("soak.concurrency must be >= 1, got %d", s.Concurrency))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// New returns a Viper instance with defaults and SKIRMISH_ environment
// overrides configured. path may be empty to run on defaults alone.
func New(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("SKIRMISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := New(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_host", "127.0.0.1")
	v.SetDefault("server.grpc_port", 50061)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "skirmish")
	v.SetDefault("database.password", "skirmish")
	v.SetDefault("database.name", "skirmish")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.sampling", false)

	v.SetDefault("engine.tick_interval", "1s")
	v.SetDefault("engine.step", "1s")
	v.SetDefault("engine.grace_ticks", 3)
	v.SetDefault("engine.time_budget", "5m")
	v.SetDefault("engine.notify_interval", "250ms")
	v.SetDefault("engine.log_window", 5)
	v.SetDefault("engine.max_encounters", 0)
	v.SetDefault("engine.script_instruction_limit", 0)

	v.SetDefault("catalog.dir", "content")
	v.SetDefault("catalog.reload_interval", "0s")

	v.SetDefault("soak.enabled", false)
	v.SetDefault("soak.interval", "2s")
	v.SetDefault("soak.concurrency", 4)

	v.SetDefault("tuning.global", 1.0)
	v.SetDefault("tuning.nightmare", 2.5)
}
