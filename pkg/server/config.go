package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	openairealtime "github.com/haivivi/ishe/pkg/openai-realtime"
)

// Config is the backend configuration. It is read from an optional YAML
// file; a .env file and the process environment override it.
type Config struct {
	Server   HTTPConfig     `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Auth     AuthConfig     `yaml:"auth"`
	Store    StoreConfig    `yaml:"store"`
	Storage  StorageConfig  `yaml:"storage"`
	Prompts  PromptsConfig  `yaml:"prompts"`
	Embedder EmbedderConfig `yaml:"embedder"`
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// OpenAIConfig configures the realtime provider.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	// RealtimeURL is the provider's realtime REST base.
	RealtimeURL string `yaml:"realtime_url"`
	Model       string `yaml:"model"`
	Voice       string `yaml:"voice"`
	// SkipValidation disables the startup key check.
	SkipValidation bool `yaml:"skip_validation"`
}

// AuthConfig configures access-token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// StoreConfig selects the conversation store.
type StoreConfig struct {
	// Type is memory, badger, sqlite or postgres.
	Type string `yaml:"type"`
	// Dir is the badger data directory.
	Dir string `yaml:"dir"`
	// DSN is the sqlite path or the postgres connection string.
	DSN string `yaml:"dsn"`
	// MinSimilarity drops weaker search hits.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// StorageConfig selects where recordings go.
type StorageConfig struct {
	// Type is local or s3.
	Type     string `yaml:"type"`
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// PromptsConfig points at template overrides.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// EmbedderConfig selects the text embedder.
type EmbedderConfig struct {
	// Type is openai or hash.
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins: []string{
				"http://localhost:19006", "http://localhost:19000",
				"http://localhost:19001", "http://localhost:19002",
			},
		},
		Log: LogConfig{Level: "info", Format: "text"},
		OpenAI: OpenAIConfig{
			RealtimeURL: openairealtime.DefaultProviderURL,
			Model:       openairealtime.DefaultModel,
			Voice:       "alloy",
		},
		Store:    StoreConfig{Type: "badger", Dir: "data/conversations", MinSimilarity: -1},
		Storage:  StorageConfig{Type: "local", Dir: "data/recordings"},
		Embedder: EmbedderConfig{Type: "openai", Model: "text-embedding-3-small", Dimension: 384},
	}
}

// Load reads path (optional) on top of Default, then .env and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	// A missing .env is fine.
	_ = godotenv.Load()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.Model, "OPENAI_REALTIME_MODEL")
	setString(&c.Auth.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&c.Auth.Issuer, "JWT_ISSUER")
	setString(&c.Auth.Audience, "JWT_AUDIENCE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Store.Type = "postgres"
		}
	}
	setString(&c.Store.Type, "CONVERSATION_STORE")
	setString(&c.Storage.Type, "RECORDING_STORAGE")
	setString(&c.Storage.Bucket, "RECORDING_BUCKET")
	setString(&c.Storage.Region, "AWS_REGION")
	setString(&c.Storage.Endpoint, "S3_ENDPOINT")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = parseCSV(v)
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func parseCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required"))
	}
	switch c.Store.Type {
	case "memory":
	case "badger":
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for badger"))
		}
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store type %q", c.Store.Type))
	}
	switch c.Storage.Type {
	case "local":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for local storage"))
		}
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	switch c.Embedder.Type {
	case "openai", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder type %q", c.Embedder.Type))
	}
	return errors.Join(errs...)
}
