package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds all configuration needed to create any LLM provider.
type ProviderConfig struct {
	Provider   string // a Presets key, "custom", or "none"
	APIKey     string
	Model      string // chat model, used by the judge
	BaseURL    string // overrides the preset URL
	EmbedModel string // empty uses the preset's embedding model
	Dimensions int    // requested embedding size, 0 for the model default

	Timeout    time.Duration // per attempt
	MaxRetries int
	RetryDelay time.Duration // first backoff step

	// RateLimit caps request rate when set.
	RateLimit *RateLimitConfig
}

// DefaultProviderConfig returns a config with the retry defaults filled in.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Preset describes a built-in provider endpoint.
type Preset struct {
	BaseURL string
	// EmbedModel is the default embedding model; empty when the API has no
	// embedding endpoint and the provider can only act as a judge.
	EmbedModel string
	// Dimension is the vector size EmbedModel returns by default.
	Dimension int
}

// Presets lists the built-in providers. Everything except anthropic speaks
// the OpenAI wire format.
var Presets = map[string]Preset{
	"anthropic":   {BaseURL: "https://api.anthropic.com"},
	"openai":      {BaseURL: "https://api.openai.com/v1", EmbedModel: "text-embedding-3-small", Dimension: 1536},
	"groq":        {BaseURL: "https://api.groq.com/openai/v1"},
	"huggingface": {BaseURL: "https://api-inference.huggingface.co/v1", EmbedModel: "sentence-transformers/all-MiniLM-L6-v2", Dimension: 384},
	"ollama":      {BaseURL: "http://localhost:11434/v1", EmbedModel: "nomic-embed-text", Dimension: 768},
	"together":    {BaseURL: "https://api.together.xyz/v1", EmbedModel: "BAAI/bge-base-en-v1.5", Dimension: 768},
	"deepseek":    {BaseURL: "https://api.deepseek.com/v1"},
}

// PresetNames returns the Presets keys in sorted order.
func PresetNames() []string {
	out := make([]string, 0, len(Presets))
	for k := range Presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory. See llmutil.RegisterDefaultProviders.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. It returns nil, nil for an empty or
// "none" provider so the service can run without embeddings.
//
// Preset URLs and embedding models fill empty fields before the constructor
// runs. The result is rate limited inside the retry wrapper, so every
// attempt waits for limiter capacity.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}
	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q, registered: %v", cfg.Provider, f.Names())
	}

	if p, ok := Presets[cfg.Provider]; ok {
		if cfg.BaseURL == "" {
			cfg.BaseURL = p.BaseURL
		}
		if cfg.EmbedModel == "" {
			cfg.EmbedModel = p.EmbedModel
		}
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	provider = WithRateLimit(provider, cfg.RateLimit)
	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}
	return provider, nil
}

// Names lists registered providers in sorted order.
func (f *ProviderFactory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
