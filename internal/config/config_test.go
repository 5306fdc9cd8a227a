package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func valid() *Config {
	return &Config{
		LLM:    LLMConfig{Provider: "openai", APIKey: "sk-test"},
		Vector: VectorConfig{Backend: "qdrant", Dimension: 1536, TopN: 5, Threshold: 0.9},
		Store:  StoreConfig{Backend: "mongo"},
	}
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestValidate_Valid(t *testing.T) {
	if warnings := valid().Validate(); len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }, "api_key"},
		{"no provider", func(c *Config) { c.LLM.Provider = "none" }, "without deduplication"},
		{"judge without provider", func(c *Config) {
			c.LLM.Provider = ""
			c.LLM.Judge.Enabled = true
		}, "llm.judge"},
		{"preset dimension disagreement", func(c *Config) { c.LLM.Provider = "ollama" }, "768 dimensions"},
		{"provider without embeddings", func(c *Config) { c.LLM.Provider = "anthropic" }, "no embedding model"},
		{"unknown vector backend", func(c *Config) { c.Vector.Backend = "faiss" }, "vector.backend"},
		{"zero dimension", func(c *Config) { c.Vector.Dimension = 0 }, "vector.dimension"},
		{"dimension disagreement", func(c *Config) { c.LLM.Dimensions = 768 }, "llm.dimensions"},
		{"threshold above one", func(c *Config) { c.Vector.Threshold = 1.5 }, "vector.threshold"},
		{"zero threshold", func(c *Config) { c.Vector.Threshold = 0 }, "vector.threshold"},
		{"zero top_n", func(c *Config) { c.Vector.TopN = 0 }, "vector.top_n"},
		{"unknown store backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"memory store", func(c *Config) { c.Store.Backend = "memory" }, "life of the process"},
		{"sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, "sampling_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if warnings := cfg.Validate(); !hasWarning(warnings, tt.want) {
				t.Errorf("expected warning containing %q, got %v", tt.want, warnings)
			}
		})
	}
}

func TestValidate_KeylessProviders(t *testing.T) {
	for _, p := range []string{"ollama", "custom", "none"} {
		cfg := valid()
		cfg.LLM.Provider = p
		cfg.LLM.APIKey = ""
		if hasWarning(cfg.Validate(), "api_key") {
			t.Errorf("%s should not warn about api_key", p)
		}
	}
}

func TestResolveJudge(t *testing.T) {
	cfg := LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "key1",
		Judge:    JudgeConfig{Enabled: true, Provider: "anthropic", Model: "claude-sonnet-4-5"},
	}

	resolved := cfg.ResolveJudge()
	if resolved.Provider != "anthropic" || resolved.Model != "claude-sonnet-4-5" {
		t.Errorf("resolved = %+v", resolved)
	}
	if resolved.APIKey != "key1" {
		t.Errorf("expected inherited api_key=key1, got %s", resolved.APIKey)
	}

	cfg.Judge = JudgeConfig{Enabled: true}
	if got := cfg.ResolveJudge(); got.Provider != "openai" || got.Model != "gpt-4o-mini" {
		t.Errorf("judge without overrides should inherit, got %+v", got)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bujo.yaml")
	yaml := `
llm:
  provider: ollama
  embed_model: nomic-embed-text
  timeout: 30s
vector:
  backend: pgvector
  dsn: postgres://localhost/bujo
  dimension: 768
store:
  backend: sqlite
  path: /tmp/notebooks.db
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BUJO_STORE_PATH", "/var/lib/bujo.db")
	t.Setenv("BUJO_VECTOR_THRESHOLD", "0.95")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.EmbedModel != "nomic-embed-text" || cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Vector.Backend != "pgvector" || cfg.Vector.Dimension != 768 {
		t.Errorf("vector = %+v", cfg.Vector)
	}
	if cfg.Store.Path != "/var/lib/bujo.db" {
		t.Errorf("env override not applied: store.path = %q", cfg.Store.Path)
	}
	if cfg.Vector.Threshold != 0.95 {
		t.Errorf("env override not applied: threshold = %v", cfg.Vector.Threshold)
	}
	// Unset keys keep their defaults.
	if cfg.Vector.TopN != 5 || cfg.Server.Addr != ":8080" || cfg.Temporal.TaskQueue != "bujo-ingest" {
		t.Errorf("defaults missing: top_n=%d addr=%q queue=%q", cfg.Vector.TopN, cfg.Server.Addr, cfg.Temporal.TaskQueue)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("BUJO_STORE_BACKEND", "memory")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "memory" || cfg.Vector.Threshold != 0.90 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
