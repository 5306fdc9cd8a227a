// Package config loads bujo settings from a YAML file and BUJO_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/efebarandurmaz/bujo/internal/llm"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// BUJO_STORE_URI for store.uri.
const EnvPrefix = "BUJO"

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Store    StoreConfig    `mapstructure:"store"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Server   ServerConfig   `mapstructure:"server"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Log      LogConfig      `mapstructure:"log"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// LLMConfig selects the embedding provider and, optionally, an LLM judge.
type LLMConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	EmbedModel string        `mapstructure:"embed_model"`
	Dimensions int           `mapstructure:"dimensions"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`

	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`

	// Judge replaces the threshold rules with an LLM decision when enabled.
	// Unset fields inherit from the top-level LLM config.
	Judge JudgeConfig `mapstructure:"judge"`
}

// JudgeConfig allows the judge to use another provider than the embedder.
type JudgeConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ResolveJudge returns an LLMConfig with the judge overrides applied.
func (c LLMConfig) ResolveJudge() LLMConfig {
	resolved := c
	if c.Judge.Provider != "" {
		resolved.Provider = c.Judge.Provider
	}
	if c.Judge.Model != "" {
		resolved.Model = c.Judge.Model
	}
	if c.Judge.APIKey != "" {
		resolved.APIKey = c.Judge.APIKey
	}
	if c.Judge.BaseURL != "" {
		resolved.BaseURL = c.Judge.BaseURL
	}
	return resolved
}

// VectorConfig selects the similarity index backend.
type VectorConfig struct {
	Backend    string  `mapstructure:"backend"` // qdrant, pgvector or memory
	Host       string  `mapstructure:"host"`
	Port       int     `mapstructure:"port"`
	Collection string  `mapstructure:"collection"`
	DSN        string  `mapstructure:"dsn"`
	Dimension  int     `mapstructure:"dimension"`
	TopN       int     `mapstructure:"top_n"`
	Threshold  float64 `mapstructure:"threshold"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // mongo, neo4j, sqlite or memory
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Path       string `mapstructure:"path"`
}

type IngestConfig struct {
	ReindexConcurrency int `mapstructure:"reindex_concurrency"`
	ReindexBatch       int `mapstructure:"reindex_batch"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	HealthAddr string `mapstructure:"health_addr"`
	// MaxBodyBytes caps POST /notebooks request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SecretsConfig enables vault: references in credential fields. env: and
// file: references always work.
type SecretsConfig struct {
	VaultAddr  string `mapstructure:"vault_addr"`
	VaultToken string `mapstructure:"vault_token"`
	VaultMount string `mapstructure:"vault_mount"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	vectorBackends = []string{"qdrant", "pgvector", "memory"}
	storeBackends  = []string{"mongo", "neo4j", "sqlite", "memory"}
)

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if needsKey(c.LLM.Provider) && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Provider == "" || c.LLM.Provider == "none" {
		warnings = append(warnings, "no LLM provider configured; notebooks are stored without deduplication")
	}
	if c.LLM.Judge.Enabled {
		judge := c.LLM.ResolveJudge()
		if judge.Provider == "" || judge.Provider == "none" {
			warnings = append(warnings, "llm.judge.enabled is set but no judge provider is configured")
		}
	}

	if !oneOf(c.Vector.Backend, vectorBackends) {
		warnings = append(warnings, fmt.Sprintf("vector.backend '%s' is not one of %v", c.Vector.Backend, vectorBackends))
	}
	if c.Vector.Dimension <= 0 {
		warnings = append(warnings, fmt.Sprintf("vector.dimension %d must be positive", c.Vector.Dimension))
	}
	if c.LLM.Dimensions > 0 && c.Vector.Dimension > 0 && c.LLM.Dimensions != c.Vector.Dimension {
		warnings = append(warnings, fmt.Sprintf("llm.dimensions %d differs from vector.dimension %d; every embedding will be rejected",
			c.LLM.Dimensions, c.Vector.Dimension))
	}
	if p, ok := llm.Presets[c.LLM.Provider]; ok && c.LLM.EmbedModel == "" {
		switch {
		case p.EmbedModel == "":
			warnings = append(warnings, fmt.Sprintf("LLM provider '%s' has no embedding model; set llm.embed_model or notebooks are stored without deduplication", c.LLM.Provider))
		case c.LLM.Dimensions == 0 && c.Vector.Dimension > 0 && p.Dimension != c.Vector.Dimension:
			warnings = append(warnings, fmt.Sprintf("%s embeds with %s (%d dimensions) but vector.dimension is %d",
				c.LLM.Provider, p.EmbedModel, p.Dimension, c.Vector.Dimension))
		}
	}
	if c.Vector.Threshold <= 0 || c.Vector.Threshold > 1 {
		warnings = append(warnings, fmt.Sprintf("vector.threshold %.4f is outside (0, 1]; the default 0.90 will be used", c.Vector.Threshold))
	}
	if c.Vector.TopN <= 0 {
		warnings = append(warnings, fmt.Sprintf("vector.top_n %d is not positive; the default will be used", c.Vector.TopN))
	}

	if !oneOf(c.Store.Backend, storeBackends) {
		warnings = append(warnings, fmt.Sprintf("store.backend '%s' is not one of %v", c.Store.Backend, storeBackends))
	}
	if c.Store.Backend == "memory" {
		warnings = append(warnings, "store.backend 'memory' keeps notebooks only for the life of the process")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing.sampling_rate %.2f is outside [0, 1]", c.Tracing.SamplingRate))
	}

	return warnings
}

func needsKey(provider string) bool {
	switch provider {
	case "", "none", "ollama", "custom":
		return false
	}
	return true
}

func oneOf(s string, options []string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

// setDefaults gives every key a value, which also lets AutomaticEnv
// override keys absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.embed_model", "")
	v.SetDefault("llm.dimensions", 0)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", time.Minute)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.burst", 5)
	v.SetDefault("llm.judge.enabled", false)
	v.SetDefault("llm.judge.provider", "")
	v.SetDefault("llm.judge.model", "")
	v.SetDefault("llm.judge.api_key", "")
	v.SetDefault("llm.judge.base_url", "")

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "notebooks")
	v.SetDefault("vector.dsn", "")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.top_n", 5)
	v.SetDefault("vector.threshold", 0.90)

	v.SetDefault("store.backend", "mongo")
	v.SetDefault("store.uri", "mongodb://localhost:27017")
	v.SetDefault("store.database", "bujo")
	v.SetDefault("store.collection", "notebooks")
	v.SetDefault("store.username", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.path", "bujo.db")

	v.SetDefault("ingest.reindex_concurrency", 4)
	v.SetDefault("ingest.reindex_batch", 100)

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "bujo-ingest")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.health_addr", ":8081")
	v.SetDefault("server.max_body_bytes", 4<<20)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.environment", "")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("secrets.vault_addr", "")
	v.SetDefault("secrets.vault_token", "")
	v.SetDefault("secrets.vault_mount", "secret")
}

// Load reads configuration from file and environment. An empty path uses
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
