package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Queue       QueueConfig       `toml:"queue"`
	LLM         LLMConfig         `toml:"llm"`
	ObjectStore ObjectStoreConfig `toml:"objectstore"`
	Logging     LoggingConfig     `toml:"logging"`
	Reconciler  ReconcilerConfig  `toml:"reconciler"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // delete database on startup for clean test runs
}

// QueueConfig configures the three stage queues. Concurrency is per stage;
// the reasoning-bound stages are throttled lower than ingestion to respect
// provider rate limits.
type QueueConfig struct {
	PollInterval      time.Duration     `toml:"poll_interval"`
	VisibilityTimeout time.Duration     `toml:"visibility_timeout"`
	MaxAttempts       int               `toml:"max_attempts" validate:"gte=1"`
	Backoff           time.Duration     `toml:"backoff"`
	Concurrency       ConcurrencyConfig `toml:"concurrency"`
	PruneInterval     time.Duration     `toml:"prune_interval"`
	RetainCompleted   int               `toml:"retain_completed"` // finished snapshots kept per queue
	RetainAge         time.Duration     `toml:"retain_age"`
}

type ConcurrencyConfig struct {
	Ingestion          int `toml:"ingestion" validate:"gte=1"`
	RiskAssessment     int `toml:"risk_assessment" validate:"gte=1"`
	CompetitorAnalysis int `toml:"competitor_analysis" validate:"gte=1"`
}

type LLMConfig struct {
	Claude ClaudeConfig `toml:"claude"`
	Gemini GeminiConfig `toml:"gemini"`
}

type ClaudeConfig struct {
	APIKey            string        `toml:"api_key"`
	Model             string        `toml:"model"`
	MaxTokens         int           `toml:"max_tokens"`
	Temperature       float64       `toml:"temperature"`
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerMinute int           `toml:"requests_per_minute"`
}

type GeminiConfig struct {
	APIKey  string        `toml:"api_key"`
	Model   string        `toml:"model"`
	Timeout time.Duration `toml:"timeout"`
}

// ObjectStoreConfig configures the local object store used for uploaded
// files. Root is the directory holding stored objects.
type ObjectStoreConfig struct {
	Root        string        `toml:"root" validate:"required"`
	URLTTL      time.Duration `toml:"url_ttl"`
	MaxBodySize int64         `toml:"max_body_size"` // download cap in bytes
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ReconcilerConfig drives the fan-out recovery sweep: startups whose
// ingestion completed but whose downstream jobs never appeared get the
// missing branch re-triggered.
type ReconcilerConfig struct {
	Enabled    bool          `toml:"enabled"`
	Schedule   string        `toml:"schedule"` // cron expression
	StaleAfter time.Duration `toml:"stale_after"`
}

// DefaultConfig returns the configuration defaults applied before any file
// or environment override.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "localhost", Port: 8085},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/perlustro"},
		},
		Queue: QueueConfig{
			PollInterval:      time.Second,
			VisibilityTimeout: 5 * time.Minute,
			MaxAttempts:       3,
			Backoff:           2 * time.Second,
			Concurrency: ConcurrencyConfig{
				Ingestion:          3,
				RiskAssessment:     2,
				CompetitorAnalysis: 2,
			},
			PruneInterval:   time.Minute,
			RetainCompleted: 10,
			RetainAge:       24 * time.Hour,
		},
		LLM: LLMConfig{
			Claude: ClaudeConfig{
				Model:             "claude-sonnet-4-20250514",
				MaxTokens:         8192,
				Temperature:       0.1,
				Timeout:           2 * time.Minute,
				RequestsPerMinute: 30,
			},
			Gemini: GeminiConfig{
				Model:   "gemini-2.0-flash",
				Timeout: 5 * time.Minute,
			},
		},
		ObjectStore: ObjectStoreConfig{
			Root:        "./data/objects",
			URLTTL:      15 * time.Minute,
			MaxBodySize: 50 * 1024 * 1024,
		},
		Logging: LoggingConfig{Level: "info", Output: []string{"stdout"}},
		Reconciler: ReconcilerConfig{
			Enabled:    true,
			Schedule:   "@every 2m",
			StaleAfter: 5 * time.Minute,
		},
	}
}

// LoadConfig builds the configuration: defaults, then the optional TOML
// file, then environment overrides, then validation.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides maps PERLUSTRO_* environment variables onto the config.
// API keys additionally honor the provider-native variable names.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PERLUSTRO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PERLUSTRO_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PERLUSTRO_BADGER_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("PERLUSTRO_OBJECTSTORE_ROOT"); v != "" {
		cfg.ObjectStore.Root = v
	}
	if v := os.Getenv("PERLUSTRO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("PERLUSTRO_CLAUDE_API_KEY"); v != "" {
		cfg.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("PERLUSTRO_GEMINI_API_KEY"); v != "" {
		cfg.LLM.Gemini.APIKey = v
	}
}
