// Package config loads the server configuration: YAML file first, then
// MICROSPLIT_* environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmynk/microsplit/internal/address"
	"github.com/mmynk/microsplit/internal/models"
)

const envPrefix = "MICROSPLIT_"

// Config captures the runtime settings of the ledger server.
type Config struct {
	Listen        string          `yaml:"listen"`
	MetricsListen string          `yaml:"metrics_listen"`
	LogLevel      string          `yaml:"log_level"`
	ProgramID     string          `yaml:"program_id"`
	Storage       StorageConfig   `yaml:"storage"`
	Auth          AuthConfig      `yaml:"auth"`
	Rent          RentConfig      `yaml:"rent"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Genesis       []GenesisEntry  `yaml:"genesis"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
}

// DefaultRentRate is the deposit charged per byte of split account space.
const DefaultRentRate = 1

// RentConfig prices the storage deposit charged on create. Zero disables the
// deposit.
type RentConfig struct {
	UnitsPerByte uint64 `yaml:"units_per_byte"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// GenesisEntry credits an identity at startup.
type GenesisEntry struct {
	Identity string `yaml:"identity"`
	Balance  uint64 `yaml:"balance"`
}

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:        ":8080",
		MetricsListen: ":9090",
		LogLevel:      "info",
		ProgramID:     address.DefaultProgramID,
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "./data/microsplit.db",
		},
		Auth: AuthConfig{
			TokenTTL:     24 * time.Hour,
			ChallengeTTL: 5 * time.Minute,
		},
		Rent: RentConfig{
			UnitsPerByte: DefaultRentRate,
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
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

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("LISTEN", &cfg.Listen)
	str("METRICS_LISTEN", &cfg.MetricsListen)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("PROGRAM_ID", &cfg.ProgramID)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)

	parsers := []struct {
		key   string
		parse func(string) error
	}{
		{"TOKEN_TTL", func(v string) (err error) { cfg.Auth.TokenTTL, err = time.ParseDuration(v); return }},
		{"CHALLENGE_TTL", func(v string) (err error) { cfg.Auth.ChallengeTTL, err = time.ParseDuration(v); return }},
		{"RENT_UNITS_PER_BYTE", func(v string) (err error) { cfg.Rent.UnitsPerByte, err = strconv.ParseUint(v, 10, 64); return }},
		{"RATE_LIMIT_RPS", func(v string) (err error) { cfg.RateLimit.RPS, err = strconv.ParseFloat(v, 64); return }},
		{"RATE_LIMIT_BURST", func(v string) (err error) { cfg.RateLimit.Burst, err = strconv.Atoi(v); return }},
	}
	for _, p := range parsers {
		v, ok := lookup(envPrefix + p.key)
		if !ok || v == "" {
			continue
		}
		if err := p.parse(v); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, p.key, err)
		}
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.Listen = strings.TrimSpace(cfg.Listen)
	cfg.MetricsListen = strings.TrimSpace(cfg.MetricsListen)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.ProgramID = strings.TrimSpace(cfg.ProgramID)
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	for i := range cfg.Genesis {
		cfg.Genesis[i].Identity = strings.TrimSpace(cfg.Genesis[i].Identity)
	}
}

func (cfg Config) validate() error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", cfg.LogLevel)
	}
	if _, err := address.NewDeriver(cfg.ProgramID); err != nil {
		return fmt.Errorf("program_id: %w", err)
	}
	switch cfg.Storage.Driver {
	case DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if cfg.Auth.TokenTTL <= 0 || cfg.Auth.ChallengeTTL <= 0 {
		return fmt.Errorf("auth: token_ttl and challenge_ttl must be positive")
	}
	if cfg.RateLimit.RPS < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: rps and burst must not be negative")
	}
	for i, g := range cfg.Genesis {
		if _, err := models.ParseIdentity(g.Identity); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	return nil
}

// GenesisBalances returns the parsed genesis credits.
func (cfg Config) GenesisBalances() (map[models.Identity]uint64, error) {
	out := make(map[models.Identity]uint64, len(cfg.Genesis))
	for i, g := range cfg.Genesis {
		id, err := models.ParseIdentity(g.Identity)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		sum, carry := bits.Add64(out[id], g.Balance, 0)
		if carry != 0 {
			return nil, fmt.Errorf("genesis[%d]: balance overflows", i)
		}
		out[id] = sum
	}
	return out, nil
}
