package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/yungbote/quoteflow-backend/internal/platform/envutil"
)

// EnvPrefix is the prefix for environment overrides. A double underscore
// separates nesting levels: QUOTEFLOW_PRICING__TAX_PERCENT -> pricing.tax_percent.
const EnvPrefix = "QUOTEFLOW_"

// Load reads configuration from the given YAML file (if it exists), then
// overlays QUOTEFLOW_* environment variables and a few conventional
// variables (OPENAI_API_KEY, DATABASE_URL, REDIS_ADDR, TEMPORAL_ADDRESS).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyConventionalEnv(cfg)
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func applyConventionalEnv(cfg *Config) {
	cfg.LLM.APIKey = envutil.String(cfg.LLM.APIKey, "OPENAI_API_KEY")
	cfg.LLM.BaseURL = envutil.String(cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	cfg.LLM.Model = envutil.String(cfg.LLM.Model, "LLM_MODEL_TEXT")
	if dsn := envutil.String("", "DATABASE_URL"); dsn != "" && os.Getenv(EnvPrefix+"DATABASE__DSN") == "" {
		cfg.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres") {
			cfg.Database.Driver = DriverPostgres
		}
	}
	cfg.Redis.Addr = envutil.String(cfg.Redis.Addr, "REDIS_ADDR")
	cfg.Temporal.Address = envutil.String(cfg.Temporal.Address, "TEMPORAL_ADDRESS")
	cfg.Temporal.TLS.CertPath = envutil.String(cfg.Temporal.TLS.CertPath, "TEMPORAL_CLIENT_CERT_PATH")
	cfg.Temporal.TLS.KeyPath = envutil.String(cfg.Temporal.TLS.KeyPath, "TEMPORAL_CLIENT_KEY_PATH")
	cfg.Temporal.TLS.CAPath = envutil.String(cfg.Temporal.TLS.CAPath, "TEMPORAL_CLIENT_CA_PATH")
	cfg.Temporal.AutoRegisterNamespace = envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", cfg.Temporal.AutoRegisterNamespace)
	cfg.Log.Mode = envutil.String(cfg.Log.Mode, "LOG_MODE")
	if os.Getenv("OTEL_ENABLED") != "" {
		cfg.OTel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.OTel.Enabled)
	}
	cfg.OTel.Endpoint = envutil.String(cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validDrivers = map[DatabaseDriver]bool{
	DriverPostgres: true,
	DriverSQLite:   true,
}

var validStorageModes = map[StorageMode]bool{
	StorageLocal:       true,
	StorageGCS:         true,
	StorageGCSEmulator: true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("invalid database.driver %q: must be postgres or sqlite", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if !validStorageModes[c.Storage.Mode] {
		return fmt.Errorf("invalid storage.mode %q: must be one of local, gcs, gcs_emulator", c.Storage.Mode)
	}
	if c.Storage.Mode == StorageLocal && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir is required for local storage")
	}
	if c.Storage.Mode != StorageLocal && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required for %s storage", c.Storage.Mode)
	}
	if c.Storage.Mode == StorageGCSEmulator && c.Storage.EmulatorHost == "" {
		return fmt.Errorf("storage.emulator_host is required for gcs_emulator storage")
	}
	if c.Pricing.ContingencyPercent < 0 || c.Pricing.ContingencyPercent > 100 {
		return fmt.Errorf("pricing.contingency_percent must be within [0,100]")
	}
	if c.Pricing.TaxPercent < 0 || c.Pricing.TaxPercent > 100 {
		return fmt.Errorf("pricing.tax_percent must be within [0,100]")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0,2]")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be positive")
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		return fmt.Errorf("otel.sample_ratio must be within [0,1]")
	}
	return nil
}

// TemporalEnabled reports whether jobs should be dispatched through Temporal.
func (c *Config) TemporalEnabled() bool {
	return strings.TrimSpace(c.Temporal.Address) != ""
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}
