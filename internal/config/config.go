// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.cleo/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Gemini: API key, chat model, embedding model and dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Server: listen address, proxy trust, rate limiting
//   - Observability: Datadog APM tracing via local agent
//
// Security: the API key and database password are never logged.
// Validation: range checks live in validation.go with sentinel errors so
// callers can use errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultModel is the default Gemini chat model.
	DefaultModel = "gemini-2.0-flash"

	// DefaultEmbedderModel is the default Gemini embedding model.
	DefaultEmbedderModel = "gemini-embedding-exp-03-07"

	// DefaultEmbedDimension is the vector dimension used downstream.
	// Embedding responses are truncated to this length before search;
	// it must match the vector(N) columns in db/migrations.
	DefaultEmbedDimension = 2000

	// DefaultGeminiBaseURL is the Generative Language API endpoint.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultServerAddr is the default HTTP listen address.
	DefaultServerAddr = "127.0.0.1:8787"
)

// DatadogConfig holds Datadog APM tracing configuration.
// Traces are exported via OTLP HTTP to a local Datadog Agent; the agent
// handles authentication and forwarding, so no API key lives in the app.
type DatadogConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Gemini configuration
	GeminiAPIKey   string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	GeminiBaseURL  string `mapstructure:"gemini_base_url" json:"gemini_base_url"`
	ModelName      string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel  string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedDimension int    `mapstructure:"embed_dimension" json:"embed_dimension"`

	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`   // Per-IP rate limiter burst (0 = default)

	// Observability configuration
	Datadog DatadogConfig `mapstructure:"datadog" json:"datadog"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".cleo")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Gemini defaults
	viper.SetDefault("gemini_base_url", DefaultGeminiBaseURL)
	viper.SetDefault("model_name", DefaultModel)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embed_dimension", DefaultEmbedDimension)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "cleo")
	viper.SetDefault("postgres_password", "cleo_dev_password")
	viper.SetDefault("postgres_db_name", "cleo")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("server_addr", DefaultServerAddr)
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 0)

	// Datadog defaults (disabled unless explicitly enabled)
	viper.SetDefault("datadog.enabled", false)
	viper.SetDefault("datadog.agent_host", "localhost:4318")
	viper.SetDefault("datadog.environment", "dev")
	viper.SetDefault("datadog.service_name", "cleo")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("gemini_base_url", "CLEO_GEMINI_BASE_URL")
	mustBind("model_name", "CLEO_MODEL_NAME")
	mustBind("embedder_model", "CLEO_EMBEDDER_MODEL")
	mustBind("server_addr", "CLEO_SERVER_ADDR")
	mustBind("trust_proxy", "CLEO_TRUST_PROXY")
	mustBind("rate_burst", "CLEO_RATE_BURST")
	mustBind("datadog.enabled", "CLEO_TRACING_ENABLED")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	if a.GeminiAPIKey != "" {
		a.GeminiAPIKey = maskedValue
	}
	if a.PostgresPassword != "" {
		a.PostgresPassword = maskedValue
	}
	return json.Marshal(a)
}
