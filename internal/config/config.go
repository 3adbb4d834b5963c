// Package config loads and validates application configuration.
//
// Sources, highest priority first: environment variables, the config
// file (~/.secondbrain/config.yaml), then built-in defaults. DATABASE_URL,
// when set, overrides the individual postgres_* settings.
//
// Sensitive fields (passwords, secrets, bearer tokens) must never appear
// in log output.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Validation sentinels. Callers match them with errors.Is; the wrapped
// message carries the offending value.
var (
	ErrConfigNil              = errors.New("configuration is nil")
	ErrMissingAPIKey          = errors.New("missing API key")
	ErrInvalidModelName       = errors.New("invalid model name")
	ErrInvalidTemperature     = errors.New("invalid temperature")
	ErrInvalidMaxTokens       = errors.New("invalid max tokens")
	ErrInvalidEmbedderModel   = errors.New("invalid embedder model")
	ErrInvalidTokenLimit      = errors.New("invalid daily token limit")
	ErrInvalidRequestInterval = errors.New("invalid request interval")
	ErrInvalidPostgresHost    = errors.New("invalid PostgreSQL host")
	ErrInvalidPostgresPort    = errors.New("invalid PostgreSQL port")
	ErrInvalidPostgresDBName  = errors.New("invalid PostgreSQL database name")
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
	ErrMissingHMACSecret      = errors.New("missing HMAC secret")
	ErrInvalidHMACSecret      = errors.New("invalid HMAC secret")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 512 dimensions via
	// OutputDimensionality; the pgvector schema uses 512.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default generation model.
	DefaultModelName = "gemini-2.5-flash"
)

// Config holds every runtime setting. Fields marked SENSITIVE stay out
// of slog calls.
type Config struct {
	// AI model configuration
	ModelName     string  `mapstructure:"model_name"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	EmbedderModel string  `mapstructure:"embedder_model"`

	// Answer pipeline configuration
	MaxContextTokens int `mapstructure:"max_context_tokens"`
	SearchTopK       int `mapstructure:"search_top_k"`

	// API budget configuration
	DailyTokenLimit    int `mapstructure:"daily_token_limit"`
	RequestIntervalMS  int `mapstructure:"request_interval_ms"`

	// PostgreSQL connection settings
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Redis query cache (empty addr disables the outer cache)
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"` // SENSITIVE

	// Content fetching
	TwitterBearerToken string `mapstructure:"twitter_bearer_token"` // SENSITIVE

	// Auth settings, used by serve mode only
	HMACSecret    string `mapstructure:"hmac_secret"` // SENSITIVE
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
	TrustProxy    bool   `mapstructure:"trust_proxy"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`
	RateBurst  int    `mapstructure:"rate_burst"` // per-IP rate limiter burst

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing"`
}

// Load reads configuration from ~/.secondbrain/config.yaml (or ./config.yaml),
// applies defaults and env overrides, and validates the result.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	configDir := filepath.Join(home, ".secondbrain")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file just means defaults; anything else is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		slog.Debug("no config file found, running on defaults", "search_dir", configDir)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 250)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	// Answer pipeline defaults
	viper.SetDefault("max_context_tokens", 800)
	viper.SetDefault("search_top_k", 5)

	// API budget defaults
	viper.SetDefault("daily_token_limit", 100000)
	viper.SetDefault("request_interval_ms", 3000)

	// PostgreSQL defaults match docker-compose.yml
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "secondbrain")
	viper.SetDefault("postgres_password", "secondbrain_dev_password")
	viper.SetDefault("postgres_db_name", "secondbrain")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Redis defaults (empty addr disables the query cache)
	viper.SetDefault("redis_addr", "")

	// Security defaults
	viper.SetDefault("token_ttl_hours", 24)
	viper.SetDefault("trust_proxy", false)

	// HTTP server defaults
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("rate_burst", 60)

	// Tracing defaults
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "secondbrain")
}

// bindEnvVariables binds the env overrides explicitly. GEMINI_API_KEY is
// read by Genkit itself, not through Viper; ValidateServe checks that it
// is set.
func bindEnvVariables() {
	// BindEnv only fails on an empty key, which these never are.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("hmac_secret", "HMAC_SECRET")
	mustBind("twitter_bearer_token", "TWITTER_BEARER_TOKEN")
	mustBind("redis_addr", "REDIS_ADDR")
	mustBind("redis_password", "REDIS_PASSWORD")
	mustBind("trust_proxy", "SECONDBRAIN_TRUST_PROXY")
	mustBind("listen_addr", "SECONDBRAIN_LISTEN_ADDR")
	mustBind("rate_burst", "SECONDBRAIN_RATE_BURST")
	mustBind("model_name", "SECONDBRAIN_MODEL_NAME")
	mustBind("tracing.enabled", "SECONDBRAIN_TRACING_ENABLED")
}
