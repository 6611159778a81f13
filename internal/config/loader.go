package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "entitled.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ENTITLED_PORT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ENTITLED_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ENTITLED_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ENTITLED_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ENTITLED_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ENTITLED_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "ENTITLED_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ENTITLED_LOG_SERVICE")
	setInt(&cfg.Regen.MaxConcurrent, "ENTITLED_REGEN_MAX_CONCURRENT")
	setString(&cfg.Regen.SweepSchedule, "ENTITLED_REGEN_SWEEP_SCHEDULE")
	setInt64(&cfg.Cache.MaxCostBytes, "ENTITLED_CACHE_MAX_COST_BYTES")
	setDuration(&cfg.Cache.ProductTTL, "ENTITLED_CACHE_PRODUCT_TTL")
	setString(&cfg.Signer.CACertPath, "ENTITLED_CA_CERT")
	setString(&cfg.Signer.CAKeyPath, "ENTITLED_CA_KEY")
	setDuration(&cfg.Signer.Validity, "ENTITLED_CERT_VALIDITY")
	setInt(&cfg.Signer.BreakerThreshold, "ENTITLED_SIGNER_BREAKER_THRESHOLD")
	setDuration(&cfg.Signer.BreakerCooldown, "ENTITLED_SIGNER_BREAKER_COOLDOWN")
}

// validate checks config invariants after all sources are merged.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return fmt.Errorf("postgres.max_conns must be >= 1, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
		return fmt.Errorf("postgres.min_conns %d exceeds max_conns %d",
			cfg.Postgres.MinConns, cfg.Postgres.MaxConns)
	}
	if cfg.Regen.MaxConcurrent < 1 {
		return fmt.Errorf("regen.max_concurrent must be >= 1, got %d", cfg.Regen.MaxConcurrent)
	}
	if cfg.Signer.Validity <= 0 {
		return fmt.Errorf("signer.validity must be positive, got %s", cfg.Signer.Validity)
	}
	if (cfg.Signer.CACertPath == "") != (cfg.Signer.CAKeyPath == "") {
		return errors.New("signer.ca_cert_path and signer.ca_key_path must be set together")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
