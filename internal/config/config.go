// Package config assembles runtime settings from an optional .env file, an
// optional YAML file and BEACON_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr            string        `yaml:"http_addr"`
	GRPCAddr            string        `yaml:"grpc_addr"`
	PostgresDSN         string        `yaml:"postgres_dsn"`
	RedisAddr           string        `yaml:"redis_addr"`
	RedisTTL            time.Duration `yaml:"redis_ttl"`
	RateLimitRPS        float64       `yaml:"rate_limit_rps"`
	RateLimitBurst      int           `yaml:"rate_limit_burst"`
	SeedDemo            bool          `yaml:"seed_demo"`
	RequirePrescription bool          `yaml:"require_prescription"`
	LogFormat           string        `yaml:"log_format"`
	Version             string        `yaml:"version"`
}

func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		GRPCAddr:       ":9090",
		RedisTTL:       30 * time.Second,
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		LogFormat:      "json",
		Version:        "dev",
	}
}

// Load reads BEACON_ENV_FILE (default .env) and BEACON_CONFIG when present,
// then applies environment overrides. Missing files are not an error.
func Load() (Config, error) {
	envFile := os.Getenv("BEACON_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	if path := os.Getenv("BEACON_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("BEACON_HTTP_ADDR", &c.HTTPAddr)
	str("BEACON_GRPC_ADDR", &c.GRPCAddr)
	str("BEACON_PG_DSN", &c.PostgresDSN)
	str("BEACON_REDIS_ADDR", &c.RedisAddr)
	str("BEACON_LOG_FORMAT", &c.LogFormat)
	str("BEACON_VERSION", &c.Version)

	if v, ok := lookup("BEACON_REDIS_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BEACON_REDIS_TTL: %w", err)
		}
		c.RedisTTL = d
	}
	if v, ok := lookup("BEACON_RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BEACON_RATE_RPS: %w", err)
		}
		c.RateLimitRPS = f
	}
	if v, ok := lookup("BEACON_RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BEACON_RATE_BURST: %w", err)
		}
		c.RateLimitBurst = n
	}
	for key, dst := range map[string]*bool{
		"BEACON_SEED_DEMO":            &c.SeedDemo,
		"BEACON_REQUIRE_PRESCRIPTION": &c.RequirePrescription,
	} {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http_addr is required")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive (rps=%v burst=%d)", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.RedisTTL < 0 {
		return fmt.Errorf("redis_ttl must not be negative")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// StoreKind names the backing store for build info and logs.
func (c Config) StoreKind() string {
	if c.PostgresDSN != "" {
		return "postgres"
	}
	return "memory"
}
