package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"libraripro/internal/circulation"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "LIBRARIPRO"

// DefaultPath returns the default config file path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "libraripro", "config.yml")
}

// Load reads .env, then the config file at path (or LIBRARIPRO_CONFIG, or the
// default path), then LIBRARIPRO_* environment overrides. A missing config
// file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("http.port", 8080)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "libraripro.db")
	v.SetDefault("policy.loan_days", 14)
	v.SetDefault("policy.renewal_days", 14)
	v.SetDefault("policy.max_renewals", 0)
	v.SetDefault("policy.fine_per_day", "1.00")
	v.SetDefault("policy.due_soon_days", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "libraripro")
	v.SetDefault("ratelimit.rps", 2)
	v.SetDefault("ratelimit.burst", 4)
	v.SetDefault("client.base_url", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, isCfgNotFound := err.(viper.ConfigFileNotFoundError); !isCfgNotFound {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "memory", "sqlite", "sqlite3", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver))
	}
	if c.Policy.LoanDays < 1 {
		problems = append(problems, "policy.loan_days must be at least 1")
	}
	if c.Policy.RenewalDays < 1 {
		problems = append(problems, "policy.renewal_days must be at least 1")
	}
	if c.Policy.MaxRenewals < 0 {
		problems = append(problems, "policy.max_renewals must not be negative")
	}
	if c.Policy.DueSoonDays < 0 {
		problems = append(problems, "policy.due_soon_days must not be negative")
	}
	if d, err := decimal.NewFromString(c.Policy.FinePerDay); err != nil || d.IsNegative() {
		problems = append(problems, fmt.Sprintf("policy.fine_per_day %q is not a non-negative amount", c.Policy.FinePerDay))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LendingPolicy converts the policy section for the circulation ledger.
func (c *Config) LendingPolicy() (circulation.Policy, error) {
	fine, err := decimal.NewFromString(c.Policy.FinePerDay)
	if err != nil {
		return circulation.Policy{}, fmt.Errorf("parsing policy.fine_per_day: %w", err)
	}
	return circulation.Policy{
		LoanDays:    c.Policy.LoanDays,
		RenewalDays: c.Policy.RenewalDays,
		MaxRenewals: c.Policy.MaxRenewals,
		DueSoonDays: c.Policy.DueSoonDays,
		FinePerDay:  fine,
	}, nil
}

// LogLevel maps log.level onto slog; unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Save writes the config to path as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	return enc.Encode(cfg)
}
