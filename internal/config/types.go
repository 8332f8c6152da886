package config

// Config is the full runtime configuration. It is built once by Load and
// handed to constructors explicitly.
type Config struct {
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
	Database DatabaseConfig `yaml:"database" koanf:"database"`
	Redis    RedisConfig    `yaml:"redis" koanf:"redis"`
	Temporal TemporalConfig `yaml:"temporal" koanf:"temporal"`
	LLM      LLMConfig      `yaml:"llm" koanf:"llm"`
	Storage  StorageConfig  `yaml:"storage" koanf:"storage"`
	Pricing  PricingConfig  `yaml:"pricing" koanf:"pricing"`
	Worker   WorkerConfig   `yaml:"worker" koanf:"worker"`
	OTel     OTelConfig     `yaml:"otel" koanf:"otel"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" koanf:"addr"`
	CORSOrigins    []string `yaml:"cors_origins" koanf:"cors_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" koanf:"max_upload_bytes"`
	MetricsEnabled bool     `yaml:"metrics_enabled" koanf:"metrics_enabled"`
}

type LogConfig struct {
	Mode  string `yaml:"mode" koanf:"mode"`
	Level string `yaml:"level" koanf:"level"`
}

type DatabaseDriver string

const (
	DriverPostgres DatabaseDriver = "postgres"
	DriverSQLite   DatabaseDriver = "sqlite"
)

type DatabaseConfig struct {
	Driver      DatabaseDriver `yaml:"driver" koanf:"driver"`
	DSN         string         `yaml:"dsn" koanf:"dsn"`
	AutoMigrate bool           `yaml:"auto_migrate" koanf:"auto_migrate"`
}

type RedisConfig struct {
	Addr           string `yaml:"addr" koanf:"addr"`
	Password       string `yaml:"password" koanf:"password"`
	DB             int    `yaml:"db" koanf:"db"`
	Channel        string `yaml:"channel" koanf:"channel"`
	ReservationTTL int    `yaml:"reservation_ttl_seconds" koanf:"reservation_ttl_seconds"`
}

type TemporalConfig struct {
	Address   string `yaml:"address" koanf:"address"`
	Namespace string `yaml:"namespace" koanf:"namespace"`
	TaskQueue string `yaml:"task_queue" koanf:"task_queue"`
	// DialWaitSeconds bounds how long startup keeps retrying an unreachable
	// frontend. Zero means a single attempt.
	DialWaitSeconds int `yaml:"dial_wait_seconds" koanf:"dial_wait_seconds"`
	// AutoRegisterNamespace creates the namespace on self-hosted clusters.
	AutoRegisterNamespace bool              `yaml:"auto_register_namespace" koanf:"auto_register_namespace"`
	RetentionDays         int               `yaml:"retention_days" koanf:"retention_days"`
	TLS                   TemporalTLSConfig `yaml:"tls" koanf:"tls"`
}

// TemporalTLSConfig enables mTLS when any path is set.
type TemporalTLSConfig struct {
	CertPath string `yaml:"cert_path" koanf:"cert_path"`
	KeyPath  string `yaml:"key_path" koanf:"key_path"`
	CAPath   string `yaml:"ca_path" koanf:"ca_path"`
}

type LLMConfig struct {
	APIKey         string  `yaml:"api_key" koanf:"api_key"`
	BaseURL        string  `yaml:"base_url" koanf:"base_url"`
	Model          string  `yaml:"model" koanf:"model"`
	Temperature    float64 `yaml:"temperature" koanf:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds" koanf:"timeout_seconds"`
}

type StorageMode string

const (
	StorageLocal       StorageMode = "local"
	StorageGCS         StorageMode = "gcs"
	StorageGCSEmulator StorageMode = "gcs_emulator"
)

type StorageConfig struct {
	Mode         StorageMode `yaml:"mode" koanf:"mode"`
	LocalDir     string      `yaml:"local_dir" koanf:"local_dir"`
	Bucket       string      `yaml:"bucket" koanf:"bucket"`
	EmulatorHost string      `yaml:"emulator_host" koanf:"emulator_host"`
	Prefix       string      `yaml:"prefix" koanf:"prefix"`
}

type PricingConfig struct {
	CatalogPath        string  `yaml:"catalog_path" koanf:"catalog_path"`
	ContingencyPercent float64 `yaml:"contingency_percent" koanf:"contingency_percent"`
	TaxPercent         float64 `yaml:"tax_percent" koanf:"tax_percent"`
}

type WorkerConfig struct {
	Concurrency         int `yaml:"concurrency" koanf:"concurrency"`
	MaxAttempts         int `yaml:"max_attempts" koanf:"max_attempts"`
	RetryDelaySeconds   int `yaml:"retry_delay_seconds" koanf:"retry_delay_seconds"`
	StaleRunningMinutes int `yaml:"stale_running_minutes" koanf:"stale_running_minutes"`
	PollMillis          int `yaml:"poll_millis" koanf:"poll_millis"`
}

type OTelConfig struct {
	Enabled     bool              `yaml:"enabled" koanf:"enabled"`
	ServiceName string            `yaml:"service_name" koanf:"service_name"`
	Endpoint    string            `yaml:"endpoint" koanf:"endpoint"`
	Insecure    bool              `yaml:"insecure" koanf:"insecure"`
	Headers     map[string]string `yaml:"headers" koanf:"headers"`
	SampleRatio float64           `yaml:"sample_ratio" koanf:"sample_ratio"`
	Environment string            `yaml:"environment" koanf:"environment"`
}

// DefaultConfig returns the built-in defaults every source overlays.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			MaxUploadBytes: 25 << 20,
			MetricsEnabled: true,
		},
		Log:      LogConfig{Mode: "development", Level: "debug"},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "file:quoteflow.db?_foreign_keys=on", AutoMigrate: true},
		Redis:    RedisConfig{Channel: "quoteflow.jobs", ReservationTTL: 60},
		Temporal: TemporalConfig{Namespace: "default", TaskQueue: "quoteflow", DialWaitSeconds: 60, RetentionDays: 7},
		LLM: LLMConfig{
			Model:          "gpt-4-turbo-preview",
			Temperature:    0.1,
			TimeoutSeconds: 120,
		},
		Storage: StorageConfig{Mode: StorageLocal, LocalDir: "storage"},
		Pricing: PricingConfig{ContingencyPercent: 10, TaxPercent: 5},
		Worker: WorkerConfig{
			Concurrency:         4,
			MaxAttempts:         5,
			RetryDelaySeconds:   30,
			StaleRunningMinutes: 30,
			PollMillis:          1000,
		},
		OTel: OTelConfig{ServiceName: "quoteflow-backend", SampleRatio: 1, Environment: "development"},
	}
}
