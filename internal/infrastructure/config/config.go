package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "TCPA_"
	defaultConfigFile = "configs/config.yaml"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"oneof=development test staging production"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Kafka      KafkaConfig      `koanf:"kafka"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Compliance ComplianceConfig `koanf:"compliance"`
	Security   SecurityConfig   `koanf:"security"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// URL empty means the in-memory store is used.
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	// MigrationsPath overrides the embedded migrations, e.g. file://migrations.
	MigrationsPath  string        `koanf:"migrations_path"`
}

type RedisConfig struct {
	// URL empty disables caching, send counters and sweep leases.
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db" validate:"min=0"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type KafkaConfig struct {
	// Brokers empty disables violation publishing to Kafka.
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	ServiceName  string  `koanf:"service_name"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SampleRate   float64 `koanf:"sample_rate" validate:"min=0,max=1"`
}

type ComplianceConfig struct {
	ImplicitConsentForActiveContacts bool          `koanf:"implicit_consent_for_active_contacts"`
	ConfigCacheTTL                   time.Duration `koanf:"config_cache_ttl"`
	Sweeper                          SweeperConfig `koanf:"sweeper"`
}

type SweeperConfig struct {
	Interval    time.Duration `koanf:"interval"`
	Concurrency int           `koanf:"concurrency" validate:"min=1"`
	LeaseTTL    time.Duration `koanf:"lease_ttl"`
	DryRun      bool          `koanf:"dry_run"`
}

type SecurityConfig struct {
	JWTSecret string          `koanf:"jwt_secret"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second" validate:"min=1"`
	BurstSize         int `koanf:"burst_size" validate:"min=1"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:    "tcpa.violations",
			ClientID: "tcpa-compliance-engine",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "tcpa-compliance-engine",
			SampleRate:  0.1,
		},
		Compliance: ComplianceConfig{
			ImplicitConsentForActiveContacts: true,
			ConfigCacheTTL:                   5 * time.Minute,
			Sweeper: SweeperConfig{
				Interval:    time.Hour,
				Concurrency: 4,
				LeaseTTL:    10 * time.Minute,
			},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
	}
}

// Load reads defaults, then the YAML file named by TCPA_CONFIG_FILE (or
// configs/config.yaml), then a .env file, then TCPA_* environment variables.
func Load() (*Config, error) {
	path := os.Getenv(envPrefix + "CONFIG_FILE")
	if path == "" {
		path = defaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// .env is optional and never overrides variables already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	// TCPA_SERVER_READ_TIMEOUT -> server.read_timeout, resolved against known keys
	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(name, value string) (string, interface{}) {
		key, ok := known[strings.ToLower(strings.TrimPrefix(name, envPrefix))]
		if !ok {
			return "", nil
		}
		if key == "kafka.brokers" {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Environment == "production" && c.Security.JWTSecret == "" {
		return fmt.Errorf("invalid config: security.jwt_secret is required in production")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
