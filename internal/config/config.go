package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultSolverTimeout  = 10 * time.Second
	defaultSolverMaxNodes = 200000
)

// Catalog storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	LogLevel             string
	RateLimitRPS         float64
	RateLimitBurst       int
	Catalog              CatalogConfig
	Solver               SolverConfig
}

// CatalogConfig selects where the fertilizer catalog lives and how an empty
// catalog is seeded.
type CatalogConfig struct {
	Driver   string
	Path     string
	SeedFile string
}

// SolverConfig bounds a single mixture calculation.
type SolverConfig struct {
	Timeout  time.Duration
	MaxNodes int
}

// yamlConfig represents the YAML configuration file structure. Pointer
// fields distinguish an absent key from a zero value.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	LogLevel             string        `yaml:"log_level"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Catalog              yamlCatalog   `yaml:"catalog"`
	Solver               yamlSolver    `yaml:"solver"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlCatalog struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	SeedFile string `yaml:"seed_file"`
}

type yamlSolver struct {
	Timeout  string `yaml:"timeout"`
	MaxNodes *int   `yaml:"max_nodes"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile      string
	Port            *string
	LogLevel        *string
	RateLimitRPS    *float64
	RateLimitBurst  *int
	CatalogDriver   *string
	CatalogPath     *string
	CatalogSeedFile *string
	SolverTimeout   *time.Duration
	SolverMaxNodes  *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Environment variables are applied first so that the YAML file can override them.
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		LogLevel:             defaultLogLevel,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Catalog: CatalogConfig{
			Driver: DriverMemory,
		},
		Solver: SolverConfig{
			Timeout:  defaultSolverTimeout,
			MaxNodes: defaultSolverMaxNodes,
		},
	}
}

// loadFromFile loads configuration from a YAML file. Unknown keys are rejected.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yamlCfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	durations := []struct {
		key  string
		raw  string
		dest *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
		{"solver.timeout", yamlCfg.Solver.Timeout, &cfg.Solver.Timeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dest = value
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}
	if yamlCfg.Catalog.Driver != "" {
		cfg.Catalog.Driver = yamlCfg.Catalog.Driver
	}
	if yamlCfg.Catalog.Path != "" {
		cfg.Catalog.Path = yamlCfg.Catalog.Path
	}
	if yamlCfg.Catalog.SeedFile != "" {
		cfg.Catalog.SeedFile = yamlCfg.Catalog.SeedFile
	}
	if yamlCfg.Solver.MaxNodes != nil {
		cfg.Solver.MaxNodes = *yamlCfg.Solver.MaxNodes
	}
	return nil
}

// applyEnvConfig applies environment variable configuration. Malformed
// numeric values are reported instead of silently ignored.
func applyEnvConfig(cfg *Config) error {
	if port := env("PORT"); port != "" {
		cfg.Port = port
	}
	if level := env("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if rps := env("RATE_LIMIT_RPS"); rps != "" {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = value
	}
	if burst := env("RATE_LIMIT_BURST"); burst != "" {
		value, err := strconv.Atoi(burst)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = value
	}

	if driver := env("CATALOG_DRIVER"); driver != "" {
		cfg.Catalog.Driver = driver
	}
	if path := env("CATALOG_PATH"); path != "" {
		cfg.Catalog.Path = path
	}
	if seed := env("CATALOG_SEED_FILE"); seed != "" {
		cfg.Catalog.SeedFile = seed
	}

	if timeout := env("SOLVER_TIMEOUT"); timeout != "" {
		value, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("SOLVER_TIMEOUT: %w", err)
		}
		cfg.Solver.Timeout = value
	}
	if nodes := env("SOLVER_MAX_NODES"); nodes != "" {
		value, err := strconv.Atoi(nodes)
		if err != nil {
			return fmt.Errorf("SOLVER_MAX_NODES: %w", err)
		}
		cfg.Solver.MaxNodes = value
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}
	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
	if overrides.CatalogDriver != nil && *overrides.CatalogDriver != "" {
		cfg.Catalog.Driver = *overrides.CatalogDriver
	}
	if overrides.CatalogPath != nil && *overrides.CatalogPath != "" {
		cfg.Catalog.Path = *overrides.CatalogPath
	}
	if overrides.CatalogSeedFile != nil && *overrides.CatalogSeedFile != "" {
		cfg.Catalog.SeedFile = *overrides.CatalogSeedFile
	}
	if overrides.SolverTimeout != nil && *overrides.SolverTimeout >= 0 {
		cfg.Solver.Timeout = *overrides.SolverTimeout
	}
	if overrides.SolverMaxNodes != nil && *overrides.SolverMaxNodes >= 0 {
		cfg.Solver.MaxNodes = *overrides.SolverMaxNodes
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", cfg.LogLevel)
	}
	switch cfg.Catalog.Driver {
	case DriverMemory:
	case DriverSQLite:
		if cfg.Catalog.Path == "" {
			return fmt.Errorf("catalog driver %q requires a path", DriverSQLite)
		}
	default:
		return fmt.Errorf("unsupported catalog driver %q", cfg.Catalog.Driver)
	}
	if cfg.Solver.Timeout < 0 {
		return fmt.Errorf("SOLVER_TIMEOUT must be >= 0")
	}
	if cfg.Solver.MaxNodes < 0 {
		return fmt.Errorf("SOLVER_MAX_NODES must be >= 0")
	}
	return nil
}
